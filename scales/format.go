package scales

import (
	"fmt"

	"github.com/Velocidex/ordereddict"
	"www.velocidex.com/golang/basilisk/errors"
)

const (
	FORMAT_JSON      = "json"
	FORMAT_MARKDOWN  = "markdown"
	FORMAT_PLAINTEXT = "plaintext"
)

func ValidFormat(format string) bool {
	switch format {
	case FORMAT_JSON, FORMAT_MARKDOWN, FORMAT_PLAINTEXT:
		return true
	}
	return false
}

// Format renders a stored output blob. The json format always
// succeeds and returns the blob unchanged. The human formats
// dispatch to the command's reformatters and fail as unsupported
// when the command declares none. Error outputs short circuit so
// reformatters never see them.
func Format(format string,
	markdown, plaintext Reformatter, raw []byte) (string, error) {

	if format == FORMAT_JSON {
		return string(raw), nil
	}

	output := ordereddict.NewDict()
	err := output.UnmarshalJSON(raw)
	if err != nil {
		return "", errors.New("output is not structured: %v", err)
	}

	error_value, pres := output.Get("error")
	if pres && output.Len() == 1 {
		message := fmt.Sprintf("%v", error_value)
		if format == FORMAT_MARKDOWN {
			return "**" + message + "**", nil
		}
		return message, nil
	}

	switch format {
	case FORMAT_MARKDOWN:
		if markdown == nil {
			return "", errors.NewUnsupportedError(
				"no markdown renderer for this command")
		}
		return markdown(output)

	case FORMAT_PLAINTEXT:
		if plaintext == nil {
			return "", errors.NewUnsupportedError(
				"no plaintext renderer for this command")
		}
		return plaintext(output)
	}

	return "", errors.NewUnsupportedError("unknown format %v", format)
}

// FormatCommand is a convenience wrapper for command specs.
func FormatCommand(spec *CommandSpec, format string, raw []byte) (string, error) {
	return Format(format, spec.Markdown, spec.Plaintext, raw)
}
