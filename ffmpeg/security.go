package ffmpeg

import (
	"fmt"
	"strings"

	"github.com/google/shlex"

	"vidconv/media"
)

// reservedOptions are set by the encode pipeline and may not be overridden
// through user supplied arguments.
var reservedOptions = map[string]struct{}{
	"-i":        {},
	"-y":        {},
	"-n":        {},
	"-f":        {},
	"-progress": {},
	"-stdin":    {},
	"-nostdin":  {},
}

// flagOptions take no value, so a bare token after one of them would be
// read by ffmpeg as another output file.
var flagOptions = map[string]struct{}{
	"-an":              {},
	"-vn":              {},
	"-sn":              {},
	"-dn":              {},
	"-shortest":        {},
	"-hide_banner":     {},
	"-nostats":         {},
	"-stats":           {},
	"-copyts":          {},
	"-start_at_zero":   {},
	"-accurate_seek":   {},
	"-noaccurate_seek": {},
	"-xerror":          {},
	"-bitexact":        {},
	"-benchmark":       {},
	"-ignore_unknown":  {},
	"-copy_unknown":    {},
	"-autorotate":      {},
	"-noautorotate":    {},
	"-re":              {},
}

// SplitCommand splits an argument string into a slice of arguments.
// No shell is involved.
func SplitCommand(command string) ([]string, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("invalid argument syntax: %w", err)
	}
	return args, nil
}

// ValidateExtraArgs checks additional encoder arguments. They may not contain
// shell metacharacters, may not use options the pipeline owns (input, output
// format, overwrite, progress) and may not introduce a second output: every
// bare value has to follow an option that takes one, and no value may name a
// media file.
func ValidateExtraArgs(args []string) error {
	expectValue := false
	for i, arg := range args {
		if strings.ContainsAny(arg, "|&;`$()<>") {
			return fmt.Errorf("disallowed character found in argument: %s", arg)
		}
		if strings.HasPrefix(arg, "-") && len(arg) > 1 && !expectValue {
			name := strings.SplitN(arg, ":", 2)[0]
			if _, ok := reservedOptions[name]; ok {
				return fmt.Errorf("option %s is managed by vidconv", arg)
			}
			_, isFlag := flagOptions[name]
			expectValue = !isFlag
			continue
		}
		if !expectValue {
			return fmt.Errorf("unexpected value %q at position %d", arg, i)
		}
		if looksLikeOutput(arg) {
			return fmt.Errorf("value %q at position %d looks like an output file", arg, i)
		}
		expectValue = false
	}
	return nil
}

// looksLikeOutput reports whether arg names a media file. Filter graphs and
// key=value settings are never treated as files.
func looksLikeOutput(arg string) bool {
	return !strings.Contains(arg, "=") && media.IsSupportedFormat(arg)
}

// ParseExtraArgs splits and validates an extra argument string.
func ParseExtraArgs(command string) ([]string, error) {
	if strings.TrimSpace(command) == "" {
		return nil, nil
	}
	args, err := SplitCommand(command)
	if err != nil {
		return nil, err
	}
	if err := ValidateExtraArgs(args); err != nil {
		return nil, err
	}
	return args, nil
}
