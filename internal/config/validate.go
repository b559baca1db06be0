package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	validatorOnce  sync.Once
	structValidate *validator.Validate
	translator     ut.Translator
)

func validatorInstance() (*validator.Validate, ut.Translator) {
	validatorOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		// report yaml keys so messages match the config file
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("yaml")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
		_ = en_translations.RegisterDefaultTranslations(v, trans)

		structValidate = v
		translator = trans
	})
	return structValidate, translator
}

// Validate ensures the configuration is usable. API keys are checked by
// RequireClassification, RequireResearch, and RequireImagen when the
// corresponding stage is about to run.
func (c *Config) Validate() error {
	v, trans := validatorInstance()
	if err := v.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
			return fmt.Errorf("config: %w", err)
		}
		messages := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			messages = append(messages, fieldMessage(fe, trans))
		}
		return fmt.Errorf("config: %s", strings.Join(messages, "; "))
	}
	return c.validateCrossField()
}

func fieldMessage(fe validator.FieldError, trans ut.Translator) string {
	namespace := strings.TrimPrefix(fe.Namespace(), "Config.")
	message := fe.Translate(trans)
	field := fe.Field()
	if strings.HasPrefix(message, field+" ") {
		message = strings.TrimPrefix(message, field+" ")
	}
	return namespace + " " + message
}

func (c *Config) validateCrossField() error {
	if c.Quality.MinTextLength > c.Quality.MaxTextLength {
		return errors.New("config: quality.min_text_length must not exceed quality.max_text_length")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("config: logging.format %q must be console or json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: logging.level %q is not recognised", c.Logging.Level)
	}
	if len(c.Pipeline.BuildCommand) == 0 && c.Pipeline.EnableSiteBuild {
		return errors.New("config: pipeline.build_command is required when pipeline.enable_site_build is true")
	}
	return nil
}

// RequireClassification reports whether the classification client can be constructed.
func (c *Config) RequireClassification() error {
	if c.Classification.APIKey == "" {
		return errors.New("config: classification.api_key is required (set ANTHROPIC_API_KEY or CLAUDE_API_KEY)")
	}
	return nil
}

// RequireResearch reports whether the research client can be constructed.
func (c *Config) RequireResearch() error {
	if c.Research.APIKey == "" {
		return errors.New("config: research.api_key is required (set PERPLEXITY_API_KEY)")
	}
	return nil
}

// RequireImagen reports whether thumbnail generation is configured.
func (c *Config) RequireImagen() error {
	if !c.Imagen.Enabled {
		return errors.New("config: imagen is disabled")
	}
	if c.Imagen.APIKey == "" {
		return errors.New("config: imagen.api_key is required (set GOOGLE_AI_API_KEY)")
	}
	return nil
}
