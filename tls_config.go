package ioreactor

import (
	"crypto/tls"
	"os"
	"strings"

	"github.com/nabbar/golib/certificates/tlsversion"

	"github.com/pion/dtls/v3"
)

// TlsVersion is the negotiable TLS protocol version range, reusing the
// parsing/validation idiom of certificates/tlsversion rather than
// reinventing a version enum over crypto/tls's raw ints.
type TlsVersion = tlsversion.Version

const (
	TLS1_0 = tlsversion.VersionTLS10
	TLS1_1 = tlsversion.VersionTLS11
	TLS1_2 = tlsversion.VersionTLS12
	TLS1_3 = tlsversion.VersionTLS13
)

func goVersion(v TlsVersion) uint16 {
	if v == tlsversion.VersionUnknown {
		return tls.VersionTLS12
	}
	return uint16(v)
}

// cipherSuitesByName maps the subset of cipher suite names this library
// accepts in a cipher list string to their crypto/tls IDs.
var cipherSuitesByName = func() map[string]uint16 {
	m := make(map[string]uint16)
	for _, cs := range tls.CipherSuites() {
		m[cs.Name] = cs.ID
	}
	for _, cs := range tls.InsecureCipherSuites() {
		m[cs.Name] = cs.ID
	}
	return m
}()

// parseCipherList splits a colon- or comma-separated cipher list string
// into crypto/tls cipher suite IDs. An empty list falls back to the
// process-wide list set by SetCipherList. An unrecognized name is an
// OPENSSL_ERROR, matching the overlay's configuration-time failure mode for
// an invalid cipher list.
func parseCipherList(list string) ([]uint16, Error) {
	if list == "" {
		list = CipherList()
	}
	if list == "" {
		return nil, Ok()
	}
	fields := strings.FieldsFunc(list, func(r rune) bool { return r == ':' || r == ',' })
	ids := make([]uint16, 0, len(fields))
	for _, name := range fields {
		id, ok := cipherSuitesByName[strings.TrimSpace(name)]
		if !ok {
			return nil, NewError(OPENSSL_ERROR, "unknown cipher suite: "+name)
		}
		ids = append(ids, id)
	}
	return ids, Ok()
}

// TlsConfig configures a TlsClient or TlsServer's handshake: the negotiable
// version range, the cipher list (empty means the global list set by
// SetCipherList), and (server-side) the certificate and private key.
type TlsConfig struct {
	MinVersion TlsVersion
	MaxVersion TlsVersion
	CipherList string

	// ServerName is the SNI hostname a TlsClient verifies the server
	// certificate against.
	ServerName string
	// InsecureSkipVerify disables server certificate verification; for
	// tests against self-signed certificates only.
	InsecureSkipVerify bool

	// CertFile/KeyFile are PEM files loaded for server-side configuration.
	CertFile string
	KeyFile  string
}

// buildClientConfig validates and converts cfg into a *tls.Config for a
// TlsClient.
func (cfg TlsConfig) buildClientConfig() (*tls.Config, Error) {
	base, err := cfg.buildBase()
	if err.Truthy() {
		return nil, err
	}
	base.ServerName = cfg.ServerName
	base.InsecureSkipVerify = cfg.InsecureSkipVerify
	return base, Ok()
}

// buildServerConfig validates and converts cfg into a *tls.Config for a
// TlsServer, loading the configured certificate and key.
func (cfg TlsConfig) buildServerConfig() (*tls.Config, Error) {
	base, err := cfg.buildBase()
	if err.Truthy() {
		return nil, err
	}

	certPEM, rerr := os.ReadFile(cfg.CertFile)
	if rerr != nil {
		return nil, NewError(TLS_CERTIFICATE_FILE_NOT_EXIST, rerr.Error())
	}
	keyPEM, rerr := os.ReadFile(cfg.KeyFile)
	if rerr != nil {
		return nil, NewError(TLS_PRIVATE_KEY_FILE_NOT_EXIST, rerr.Error())
	}

	cert, perr := tls.X509KeyPair(certPEM, keyPEM)
	if perr != nil {
		msg := perr.Error()
		switch {
		case strings.Contains(msg, "private key does not match"):
			return nil, NewError(TLS_PRIVATE_KEY_AND_CERTIFICATE_NOT_MATCH, msg)
		case strings.Contains(msg, "failed to find any PEM data in key"), strings.Contains(msg, "key"):
			return nil, NewError(TLS_PRIVATE_KEY_INVALID, msg)
		default:
			return nil, NewError(TLS_CERTIFICATE_INVALID, msg)
		}
	}

	base.Certificates = []tls.Certificate{cert}
	return base, Ok()
}

// dtlsCipherSuitesByName maps the cipher names pion/dtls exposes as named
// constants; unlike crypto/tls there is no runtime enumeration API, so this
// list is fixed to the suites a DtlsClient/DtlsServer is expected to use.
var dtlsCipherSuitesByName = map[string]dtls.CipherSuiteID{
	"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256": dtls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256":   dtls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_ECDSA_WITH_AES_128_CCM":        dtls.TLS_ECDHE_ECDSA_WITH_AES_128_CCM,
	"TLS_ECDHE_ECDSA_WITH_AES_128_CCM8":       dtls.TLS_ECDHE_ECDSA_WITH_AES_128_CCM8,
	"TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA":    dtls.TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA,
	"TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA":      dtls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
	"TLS_PSK_WITH_AES_128_CCM8":               dtls.TLS_PSK_WITH_AES_128_CCM8,
	"TLS_PSK_WITH_AES_128_GCM_SHA256":         dtls.TLS_PSK_WITH_AES_128_GCM_SHA256,
}

func parseDtlsCipherList(list string) ([]dtls.CipherSuiteID, Error) {
	if list == "" {
		list = CipherList()
	}
	if list == "" {
		return nil, Ok()
	}
	fields := strings.FieldsFunc(list, func(r rune) bool { return r == ':' || r == ',' })
	ids := make([]dtls.CipherSuiteID, 0, len(fields))
	for _, name := range fields {
		id, ok := dtlsCipherSuitesByName[strings.TrimSpace(name)]
		if !ok {
			return nil, NewError(OPENSSL_ERROR, "unknown DTLS cipher suite: "+name)
		}
		ids = append(ids, id)
	}
	return ids, Ok()
}

// buildDtlsClientConfig validates and converts cfg into a *dtls.Config for a
// DtlsClient.
func (cfg TlsConfig) buildDtlsClientConfig() (*dtls.Config, Error) {
	ciphers, err := parseDtlsCipherList(cfg.CipherList)
	if err.Truthy() {
		return nil, err
	}
	return &dtls.Config{
		CipherSuites:       ciphers,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}, Ok()
}

// buildDtlsServerConfig validates and converts cfg into a *dtls.Config for a
// DtlsServer, loading the configured certificate and key.
func (cfg TlsConfig) buildDtlsServerConfig() (*dtls.Config, Error) {
	ciphers, err := parseDtlsCipherList(cfg.CipherList)
	if err.Truthy() {
		return nil, err
	}

	certPEM, rerr := os.ReadFile(cfg.CertFile)
	if rerr != nil {
		return nil, NewError(TLS_CERTIFICATE_FILE_NOT_EXIST, rerr.Error())
	}
	keyPEM, rerr := os.ReadFile(cfg.KeyFile)
	if rerr != nil {
		return nil, NewError(TLS_PRIVATE_KEY_FILE_NOT_EXIST, rerr.Error())
	}
	cert, perr := tls.X509KeyPair(certPEM, keyPEM)
	if perr != nil {
		msg := perr.Error()
		switch {
		case strings.Contains(msg, "private key does not match"):
			return nil, NewError(TLS_PRIVATE_KEY_AND_CERTIFICATE_NOT_MATCH, msg)
		case strings.Contains(msg, "key"):
			return nil, NewError(TLS_PRIVATE_KEY_INVALID, msg)
		default:
			return nil, NewError(TLS_CERTIFICATE_INVALID, msg)
		}
	}

	return &dtls.Config{
		Certificates: []tls.Certificate{cert},
		CipherSuites: ciphers,
	}, Ok()
}

func (cfg TlsConfig) buildBase() (*tls.Config, Error) {
	if cfg.MinVersion > cfg.MaxVersion {
		return nil, NewError(TLS_VERSION_RANGE_INVALID, "version range invalid: min > max")
	}
	ciphers, err := parseCipherList(cfg.CipherList)
	if err.Truthy() {
		return nil, err
	}
	return &tls.Config{
		MinVersion:   goVersion(cfg.MinVersion),
		MaxVersion:   goVersion(cfg.MaxVersion),
		CipherSuites: ciphers,
	}, Ok()
}
