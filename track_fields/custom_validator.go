package track_fields

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var validatorOnce sync.Once
var validate *validator.Validate

func Validator() *validator.Validate {
	validatorOnce.Do(func() {
		validate = validator.New()
		validate.SetTagName("binding")

		err := validate.RegisterValidation("aggregator", knownAggregator)
		if err != nil {
			log.Fatalf("Unexpected err %v", err)
		}

		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]

			if name == "-" {
				return ""
			}

			return name
		})
	})
	return validate
}

// knownAggregator accepts the aggregators the locator tables cover.
func knownAggregator(fl validator.FieldLevel) bool {
	v := strings.ToLower(strings.TrimSpace(fl.Field().String()))
	return strings.HasPrefix(v, AggregatorSwiggy) || strings.HasPrefix(v, AggregatorZomato)
}

func ValidateStruct(obj interface{}) error {
	if kindOfData(obj) == reflect.Struct {
		if err := Validator().Struct(obj); err != nil {
			return err
		}
	}
	return nil
}

// DefaultValidator plugs Validator into gin's binding layer so request
// structs are checked with the same rules the roster rows are.
type DefaultValidator struct{}

func (v *DefaultValidator) ValidateStruct(obj interface{}) error {
	return ValidateStruct(obj)
}

func (v *DefaultValidator) Engine() interface{} {
	return Validator()
}

func kindOfData(data interface{}) reflect.Kind {

	value := reflect.ValueOf(data)
	valueType := value.Kind()

	if valueType == reflect.Ptr {
		valueType = value.Elem().Kind()
	}
	return valueType
}
