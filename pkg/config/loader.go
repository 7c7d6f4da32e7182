// Package config loads service configuration from struct tag defaults,
// an optional YAML/JSON file, optional dotenv files, and the process
// environment. Values resolve in priority order (highest wins):
//
//	envDefault struct tags
//	YAML/JSON config file
//	dotenv files (.env)
//	environment variables
//
// # Struct Tags
//
//   - `env:"VAR_NAME"` maps the field to an environment variable
//   - `envDefault:"value"` sets a default when the field is zero-valued
//   - `required:"true"` fails validation if the field is still zero after loading
//
// Nested structs contribute their own `env` tag as a prefix for their
// fields, joined with "_".
//
// # Usage
//
//	type Config struct {
//	    Realm   string        `env:"REALM" envDefault:"clinic-mouzaia-hub" yaml:"realm"`
//	    Port    int           `env:"IDENTITY_SERVICE_PORT" envDefault:"4000" yaml:"port"`
//	    Timeout time.Duration `env:"KEYCLOAK_TIMEOUT" envDefault:"10s" yaml:"timeout"`
//	}
//
//	cfg := config.MustLoad[Config](config.New().WithDotEnv(".env"))
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
)

var durationType = reflect.TypeOf(time.Duration(0))

// LookupFunc resolves an environment variable. It has the signature of
// [os.LookupEnv].
type LookupFunc func(key string) (string, bool)

// Loader resolves configuration into a struct. Use [New] and the With*
// methods to configure it, then call [Loader.Load].
//
// Loader is not safe for concurrent use.
type Loader struct {
	envPrefix   string
	filePath    string
	dotEnvFiles []string
	lookup      LookupFunc
}

// New creates a Loader that reads the process environment only.
func New() *Loader {
	return &Loader{lookup: os.LookupEnv}
}

// WithEnvPrefix prepends prefix (uppercased, joined with "_") to every
// environment variable name.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile sets a YAML (.yaml, .yml) or JSON (.json) file to load. A
// missing file is not an error. Paths containing ".." are rejected.
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// WithDotEnv adds dotenv files whose variables apply below the real
// environment. Missing files are skipped.
func (l *Loader) WithDotEnv(paths ...string) *Loader {
	l.dotEnvFiles = append(l.dotEnvFiles, paths...)
	return l
}

// WithLookup replaces the environment source. Tests use it to supply
// variables without touching the process environment.
func (l *Loader) WithLookup(fn LookupFunc) *Loader {
	if fn != nil {
		l.lookup = fn
	}
	return l
}

// Load populates cfg, which must be a non-nil pointer to a struct, and
// validates it. Loading failures carry [sserr.CodeInternalConfiguration];
// validation failures carry [sserr.CodeValidationRequired] or
// [sserr.CodeValidation].
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}
	rv = rv.Elem()

	err := walk(rv, "", "", func(f leaf) error {
		def := f.tag.Get("envDefault")
		if def == "" || !f.value.IsZero() {
			return nil
		}
		if err := setField(f.value, def); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: invalid default for field %q", f.path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}

	lookup, err := l.resolveLookup()
	if err != nil {
		return err
	}

	err = walk(rv, l.envPrefix, "", func(f leaf) error {
		if f.envKey == "" {
			return nil
		}
		val, ok := lookup(f.envKey)
		if !ok {
			return nil
		}
		if err := setField(f.value, val); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to set field %q from %s", f.path, f.envKey)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return validate(cfg, rv)
}

// MustLoad loads a T with loader and panics on failure. Use it in main,
// where a broken configuration should stop the process.
func MustLoad[T any](loader *Loader) T {
	var cfg T
	if err := loader.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

// resolveLookup layers dotenv values beneath the configured lookup.
func (l *Loader) resolveLookup() (LookupFunc, error) {
	if len(l.dotEnvFiles) == 0 {
		return l.lookup, nil
	}
	fileVars := make(map[string]string)
	for _, path := range l.dotEnvFiles {
		vars, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to read dotenv file %q", path)
		}
		// Earlier files win, matching godotenv.Load.
		for k, v := range vars {
			if _, seen := fileVars[k]; !seen {
				fileVars[k] = v
			}
		}
	}
	primary := l.lookup
	return func(key string) (string, bool) {
		if v, ok := primary(key); ok {
			return v, true
		}
		v, ok := fileVars[key]
		return v, ok
	}, nil
}

func (l *Loader) loadFile(cfg any) error {
	if strings.Contains(l.filePath, "..") {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: file path must not contain directory traversal (..) sequences")
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to read file %q", l.filePath)
	}

	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"config: unsupported file extension %q (use .yaml, .yml, or .json)", ext)
	}
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to parse file %q", l.filePath)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Struct traversal
// ---------------------------------------------------------------------------

// leaf is a settable non-struct field reached by walk.
type leaf struct {
	value  reflect.Value
	tag    reflect.StructTag
	path   string
	envKey string
}

// walk visits every settable leaf field of rv in declaration order.
// Nested structs (other than time.Duration) are descended into, and
// their env tag extends the prefix for their children.
func walk(rv reflect.Value, prefix, path string, visit func(leaf) error) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rv.Field(i)
		sf := rt.Field(i)
		if !field.CanSet() {
			continue
		}

		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}
		envTag := sf.Tag.Get("env")

		if field.Kind() == reflect.Struct && sf.Type != durationType {
			if err := walk(field, joinKey(prefix, envTag), fieldPath, visit); err != nil {
				return err
			}
			continue
		}

		envKey := ""
		if envTag != "" {
			envKey = joinKey(prefix, envTag)
		}
		if err := visit(leaf{value: field, tag: sf.Tag, path: fieldPath, envKey: envKey}); err != nil {
			return err
		}
	}
	return nil
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "_" + key
	}
}

// setField parses value into field. Supported kinds are string types
// (including keycloak.Secret), bool, signed and unsigned integers,
// floats, time.Duration and []string (comma separated).
func setField(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("cannot parse duration %q: %w", value, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("cannot parse bool %q: %w", value, err)
		}
		field.SetBool(b)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse integer %q: %w", value, err)
		}
		field.SetInt(n)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(strings.TrimSpace(value), 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse unsigned integer %q: %w", value, err)
		}
		field.SetUint(n)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse float %q: %w", value, err)
		}
		field.SetFloat(f)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		slice := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p == "" {
				continue
			}
			slice = reflect.Append(slice, reflect.ValueOf(p).Convert(field.Type().Elem()))
		}
		field.Set(slice)

	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}

	return nil
}
