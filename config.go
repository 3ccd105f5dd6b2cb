package fastmssql

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/microsoft/go-mssqldb/msdsn"
)

// Encryption selects the TLS posture for the connection.
type Encryption int

const (
	// EncryptionRequired encrypts the whole session and is the default.
	EncryptionRequired Encryption = iota
	// EncryptionLoginOnly encrypts only the login packet exchange.
	EncryptionLoginOnly
	// EncryptionOff disables TLS entirely. Only for isolated networks.
	EncryptionOff
)

func (e Encryption) dsnValue() string {
	switch e {
	case EncryptionLoginOnly:
		return "false"
	case EncryptionOff:
		return "disable"
	default:
		return "true"
	}
}

// TLSConfig carries the certificate-validation options. The zero value
// requires encryption and validates the server certificate against the
// system roots.
type TLSConfig struct {
	Encryption Encryption
	// TrustServerCertificate skips certificate chain validation. Mutually
	// exclusive with CertificatePath.
	TrustServerCertificate bool
	// CertificatePath points at a custom CA certificate (.pem, .crt or
	// .der) used as the validation root instead of the system pool.
	CertificatePath string
	// DisableSNI omits the server name from the TLS handshake. Usually
	// combined with TrustServerCertificate.
	DisableSNI bool
	// HostnameInCertificate overrides the name the server certificate is
	// validated against, for servers reached through aliases.
	HostnameInCertificate string
}

var certExtensions = map[string]bool{".pem": true, ".crt": true, ".der": true}

func (t *TLSConfig) validate() error {
	if t.TrustServerCertificate && t.CertificatePath != "" {
		return configErr("TLS", "TrustServerCertificate and CertificatePath are mutually exclusive")
	}
	if t.CertificatePath != "" {
		ext := strings.ToLower(filepath.Ext(t.CertificatePath))
		if !certExtensions[ext] {
			return configErr("TLS", "certificate %q must have a .pem, .crt or .der extension", t.CertificatePath)
		}
		f, err := os.Open(t.CertificatePath)
		if err != nil {
			return configErr("TLS", "certificate %q is not readable: %v", t.CertificatePath, err)
		}
		f.Close()
	}
	return nil
}

// Config describes one connection target: either a raw connection string or
// a structured server/database/auth tuple, plus optional TLS settings.
// Construct with NewConfig; a Config is immutable afterwards.
type Config struct {
	connString string

	server   string
	port     int
	instance string
	database string
	appName  string
	readOnly bool

	user     string
	password string
	sqlAuth  bool
	trusted  bool

	tls      *TLSConfig
	logFlags uint64

	parsed msdsn.Config
}

// Option mutates a Config under construction.
type Option func(*Config)

// WithConnectionString uses a full ADO, ODBC or sqlserver:// URL connection
// string as the target. Mutually exclusive with WithServer.
func WithConnectionString(connString string) Option {
	return func(c *Config) { c.connString = connString }
}

// WithServer sets the host and TCP port of the target. A port of 0 selects
// the default (1433) or SQL Browser resolution when an instance is named.
func WithServer(host string, port int) Option {
	return func(c *Config) { c.server = host; c.port = port }
}

// WithInstance targets a named instance instead of a fixed port.
func WithInstance(name string) Option {
	return func(c *Config) { c.instance = name }
}

// WithDatabase selects the initial database.
func WithDatabase(name string) Option {
	return func(c *Config) { c.database = name }
}

// WithSQLAuth authenticates with a SQL Server login.
func WithSQLAuth(user, password string) Option {
	return func(c *Config) { c.user = user; c.password = password; c.sqlAuth = true }
}

// WithTrustedConnection authenticates as the operating-system user.
func WithTrustedConnection() Option {
	return func(c *Config) { c.trusted = true }
}

// WithAppName overrides the application name reported to the server.
func WithAppName(name string) Option {
	return func(c *Config) { c.appName = name }
}

// WithReadOnlyIntent declares read-only application intent, which lets
// Always On availability groups route the session to a readable secondary.
func WithReadOnlyIntent() Option {
	return func(c *Config) { c.readOnly = true }
}

// WithTLS applies certificate-validation options.
func WithTLS(tls TLSConfig) Option {
	return func(c *Config) { c.tls = &tls }
}

// WithLogFlags enables driver/pool logging categories (msdsn.Log bits).
func WithLogFlags(flags uint64) Option {
	return func(c *Config) { c.logFlags = flags }
}

// NewConfig validates the options, assembles the connection string and
// parses it eagerly so malformed targets fail here rather than at first use.
func NewConfig(opts ...Option) (*Config, error) {
	c := &Config{appName: defaultAppName}
	for _, opt := range opts {
		opt(c)
	}
	if c.connString == "" && c.server == "" {
		return nil, configErr("target", "either a connection string or a server must be provided")
	}
	if c.connString != "" && c.server != "" {
		return nil, configErr("target", "connection string and server are mutually exclusive")
	}
	if c.sqlAuth && c.trusted {
		return nil, configErr("auth", "SQL authentication and trusted connection are mutually exclusive")
	}
	if c.tls != nil {
		if err := c.tls.validate(); err != nil {
			return nil, err
		}
	}

	dsn := c.connString
	if dsn == "" {
		dsn = c.buildDSN()
	}
	parsed, err := msdsn.Parse(dsn)
	if err != nil {
		return nil, configErr("target", "invalid connection string: %v", err)
	}
	if c.tls != nil && c.tls.DisableSNI && parsed.TLSConfig != nil {
		parsed.TLSConfig.ServerName = ""
	}
	c.parsed = parsed
	return c, nil
}

// buildDSN assembles an ADO-style connection string from the structured
// target fields.
func (c *Config) buildDSN() string {
	server := c.server
	if c.instance != "" {
		server += "\\" + c.instance
	}
	if c.port > 0 {
		server += fmt.Sprintf(",%d", c.port)
	}
	parts := []string{"server=" + server}
	if c.database != "" {
		parts = append(parts, "database="+c.database)
	}
	if c.sqlAuth {
		parts = append(parts, "user id="+c.user, "password="+c.password)
	}
	if c.appName != "" {
		parts = append(parts, "app name="+c.appName)
	}
	if c.readOnly {
		parts = append(parts, "applicationintent=ReadOnly")
	}
	if c.logFlags != 0 {
		parts = append(parts, fmt.Sprintf("log=%d", c.logFlags))
	}
	if c.tls != nil {
		parts = append(parts, "encrypt="+c.tls.Encryption.dsnValue())
		if c.tls.TrustServerCertificate {
			parts = append(parts, "trustservercertificate=true")
		}
		if c.tls.CertificatePath != "" {
			parts = append(parts, "certificate="+c.tls.CertificatePath)
		}
		if c.tls.HostnameInCertificate != "" {
			parts = append(parts, "hostnameincertificate="+c.tls.HostnameInCertificate)
		}
	}
	return strings.Join(parts, ";")
}

// Database returns the configured database name.
func (c *Config) Database() string { return c.parsed.Database }

// Server returns the configured host.
func (c *Config) Server() string { return c.parsed.Host }

// LogFlags returns the enabled logging categories.
func (c *Config) LogFlags() uint64 { return uint64(c.parsed.LogFlags) | c.logFlags }

// msdsnConfig returns a copy of the parsed driver configuration.
func (c *Config) msdsnConfig() msdsn.Config { return c.parsed }
