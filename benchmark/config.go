package benchmark

import (
	"errors"
	"fmt"
	"math"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"go.yaml.in/yaml/v3"
)

var ErrInvalidConfig = errors.New("invalid benchmark configuration")

// LoadConfigs reads a YAML file whose root is a list of configuration mappings.
func LoadConfigs(path string) ([]Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load YAML: %w", ErrInvalidConfig, err)
	}
	return ParseConfigs(buf)
}

func ParseConfigs(buf []byte) ([]Config, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(buf, &root); err != nil {
		return nil, fmt.Errorf("%w: failed to load YAML: %w", ErrInvalidConfig, err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: YAML file must contain a list of configuration dictionaries", ErrInvalidConfig)
	}

	seq := root.Content[0]
	configs := make([]Config, 0, len(seq.Content))
	for i, item := range seq.Content {
		if item.Kind == yaml.AliasNode {
			item = item.Alias
		}
		if item.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%w: entry %d (line %d) is not a mapping", ErrInvalidConfig, i+1, item.Line)
		}
		cfg := Config{}
		if err := item.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrInvalidConfig, i+1, err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their configuration key
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("mapstructure")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// DecodeInput converts a configuration entry into a driver's typed input and checks its validate tags.
func DecodeInput(cfg Config, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       strictIntHook,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(cfg)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	err = validate.Struct(out)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			if fe.Tag() == "required" {
				fields = append(fields, fmt.Sprintf("%s (missing)", fe.Field()))
			} else {
				fields = append(fields, fmt.Sprintf("%s (must be %s %s)", fe.Field(), fe.Tag(), fe.Param()))
			}
		}
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(fields, ", "))
	} else if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// strictIntHook keeps weak decoding from turning 10.5 into 10 or true into 1.
func strictIntHook(from, to reflect.Type, data any) (any, error) {
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return data, nil
	}
	switch from.Kind() {
	case reflect.Bool:
		return nil, fmt.Errorf("expected an integer, got %v", data)
	case reflect.Float32, reflect.Float64:
		f := reflect.ValueOf(data).Float()
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("expected an integer, got %v", data)
		}
	}
	return data, nil
}

// ValidateAll checks every entry before anything runs so a bad entry can't abort a session halfway.
func ValidateAll(d Driver, configs []Config) error {
	errs := []error{}
	for i, cfg := range configs {
		if err := d.Validate(cfg); err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i+1, err))
		}
	}
	return errors.Join(errs...)
}
