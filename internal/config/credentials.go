package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultDatabaseKey is the database.<key> section used when none is given.
const DefaultDatabaseKey = "default"

// DefaultClientEncoding is sent to PostgreSQL with every connection.
const DefaultClientEncoding = "UTF8"

var (
	// ErrConfigNotFound is returned when the credentials file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrConfigParse is returned when the credentials file cannot be read
	// or holds malformed data.
	ErrConfigParse = errors.New("error loading configuration")

	// ErrMissingKey matches every *MissingKeyError.
	ErrMissingKey = errors.New("missing required configuration key")
)

// MissingKeyError names the exact dotted key path that was not found.
type MissingKeyError struct {
	Path string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingKey.Error(), e.Path)
}

// Is reports whether target is ErrMissingKey.
func (e *MissingKeyError) Is(target error) bool {
	return target == ErrMissingKey
}

// File is a loaded credentials file.
type File struct {
	Path string
	data map[string]any
}

// ConnectionParams are typed PostgreSQL connection parameters.
type ConnectionParams struct {
	Host           string
	Port           int
	Database       string
	User           string
	Password       string
	ClientEncoding string
}

// LoadFile reads a credentials file. Files ending in .yaml or .yml are
// parsed as YAML, everything else as TOML.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigParse, path, err)
	}

	raw := make(map[string]any)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		_, err = toml.Decode(string(data), &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigParse, path, err)
	}

	return &File{Path: path, data: raw}, nil
}

// DBCredentials looks up database.<key> and users.admin and returns the
// combined connection parameters. An empty key selects DefaultDatabaseKey.
func (f *File) DBCredentials(key string) (ConnectionParams, error) {
	if key == "" {
		key = DefaultDatabaseKey
	}

	db, err := f.section("database", key)
	if err != nil {
		return ConnectionParams{}, err
	}
	admin, err := f.section("users", "admin")
	if err != nil {
		return ConnectionParams{}, err
	}

	dbPath := "database." + key
	host, err := stringValue(db, dbPath, "host")
	if err != nil {
		return ConnectionParams{}, err
	}
	port, err := portValue(db, dbPath, "port")
	if err != nil {
		return ConnectionParams{}, err
	}
	name, err := stringValue(db, dbPath, "name")
	if err != nil {
		return ConnectionParams{}, err
	}
	user, err := stringValue(admin, "users.admin", "username")
	if err != nil {
		return ConnectionParams{}, err
	}
	password, err := stringValue(admin, "users.admin", "password")
	if err != nil {
		return ConnectionParams{}, err
	}

	return ConnectionParams{
		Host:           host,
		Port:           port,
		Database:       name,
		User:           user,
		Password:       password,
		ClientEncoding: DefaultClientEncoding,
	}, nil
}

// section returns the nested table at outer.inner.
func (f *File) section(outer, inner string) (map[string]any, error) {
	top, ok := f.data[outer]
	if !ok {
		return nil, &MissingKeyError{Path: outer}
	}
	topMap, ok := asMap(top)
	if !ok {
		return nil, fmt.Errorf("%w: %s: expected a table", ErrConfigParse, outer)
	}

	path := outer + "." + inner
	sub, ok := topMap[inner]
	if !ok {
		return nil, &MissingKeyError{Path: path}
	}
	subMap, ok := asMap(sub)
	if !ok {
		return nil, fmt.Errorf("%w: %s: expected a table", ErrConfigParse, path)
	}
	return subMap, nil
}

// asMap accepts both decoder flavours of a nested table.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

func stringValue(m map[string]any, path, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", &MissingKeyError{Path: path + "." + key}
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case map[string]any, map[any]any, []any:
		return "", fmt.Errorf("%w: %s.%s: expected a scalar", ErrConfigParse, path, key)
	default:
		return fmt.Sprint(s), nil
	}
}

func portValue(m map[string]any, path, key string) (int, error) {
	v, ok := m[key]
	if !ok {
		return 0, &MissingKeyError{Path: path + "." + key}
	}

	var port int64
	switch p := v.(type) {
	case int:
		port = int64(p)
	case int64:
		port = p
	case uint64:
		port = int64(p)
	case float64:
		if p != math.Trunc(p) {
			return 0, fmt.Errorf("%w: %s.%s: port must be an integer", ErrConfigParse, path, key)
		}
		port = int64(p)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s.%s: invalid port %q", ErrConfigParse, path, key, p)
		}
		port = n
	default:
		return 0, fmt.Errorf("%w: %s.%s: unsupported port type %T", ErrConfigParse, path, key, v)
	}

	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("%w: %s.%s: port %d out of range", ErrConfigParse, path, key, port)
	}
	return int(port), nil
}

// ConnString returns a postgres:// URL for the parameters.
func (p ConnectionParams) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
		Path:   "/" + p.Database,
	}
	enc := p.ClientEncoding
	if enc == "" {
		enc = DefaultClientEncoding
	}
	u.RawQuery = url.Values{"client_encoding": []string{enc}}.Encode()
	return u.String()
}

// String masks the password.
func (p ConnectionParams) String() string {
	return fmt.Sprintf("ConnectionParams{Host: %q, Port: %d, Database: %q, User: %q, Password: [MASKED]}",
		p.Host, p.Port, p.Database, p.User)
}

// ConnString resolves the PostgreSQL connection string: DATABASE_URL when
// set, otherwise the credentials file section selected by Key.
func (c DatabaseConfig) ConnString() (string, error) {
	if c.URL != "" {
		return c.URL, nil
	}
	f, err := LoadFile(c.ConfigPath)
	if err != nil {
		return "", err
	}
	params, err := f.DBCredentials(c.Key)
	if err != nil {
		return "", err
	}
	return params.ConnString(), nil
}
