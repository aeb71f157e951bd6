// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package ioreactor

import "time"

// reactorOptions holds configuration options for Reactor creation.
type reactorOptions struct {
	threadPoolSize  int
	blockExitPeriod time.Duration
	logger          *Logger
}

// ReactorOption configures a Reactor instance.
type ReactorOption interface {
	applyReactor(*reactorOptions) error
}

// reactorOptionFunc implements ReactorOption.
type reactorOptionFunc struct {
	fn func(*reactorOptions) error
}

func (o *reactorOptionFunc) applyReactor(opts *reactorOptions) error {
	return o.fn(opts)
}

// WithThreadPoolSize overrides the worker pool size used by AddWork,
// in place of the IOREACTOR_THREADPOOL_SIZE environment variable.
// Values above 128 are clamped to 128; n <= 0 leaves the environment
// variable (or its default of 4) in effect.
func WithThreadPoolSize(n int) ReactorOption {
	return &reactorOptionFunc{func(opts *reactorOptions) error {
		opts.threadPoolSize = n
		return nil
	}}
}

// WithBlockExitPollPeriod overrides the period of the internal ticker that
// StartBlockLoopFromExit runs while a reference is held. Defaults to 1ms.
func WithBlockExitPollPeriod(d time.Duration) ReactorOption {
	return &reactorOptionFunc{func(opts *reactorOptions) error {
		opts.blockExitPeriod = d
		return nil
	}}
}

// WithLogger attaches a logger sink to this Reactor only, overriding the
// process-wide default installed via SetLogger.
func WithLogger(l *Logger) ReactorOption {
	return &reactorOptionFunc{func(opts *reactorOptions) error {
		opts.logger = l
		return nil
	}}
}

// resolveReactorOptions applies ReactorOption instances to reactorOptions.
func resolveReactorOptions(opts []ReactorOption) (*reactorOptions, error) {
	cfg := &reactorOptions{
		blockExitPeriod: time.Millisecond,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyReactor(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
