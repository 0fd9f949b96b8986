package middleware

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/capitalize-ai/realtime-relay/internal/model"
)

var validate = validator.New()

// ValidateChatRequest checks field limits on a decoded chat request. Blank
// messages pass: the chat service answers them itself.
func ValidateChatRequest(req *model.ChatRequest) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%s exceeds maximum length", verrs[0].Field())
		}
		return err
	}
	if !utf8.ValidString(req.Message) {
		return errors.New("message must be valid UTF-8")
	}
	return nil
}
