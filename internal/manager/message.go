package manager

import (
	"strings"

	"github.com/david1155/manver/pkg/version"
)

// FormatTemplate fills the placeholders of a commit message or tag name
// template. {name} is the project name, empty outside project mode. {part}
// and {identifier} name the bumped part; {current_version} and
// {prev_version} the old version; {new_version} and {next_version} the new
// one. Unknown placeholders are left as is.
func FormatTemplate(tpl, name string, part version.Part, prev, next version.Version) string {
	return strings.NewReplacer(
		"{name}", name,
		"{part}", string(part),
		"{identifier}", string(part),
		"{current_version}", prev.String(),
		"{prev_version}", prev.String(),
		"{new_version}", next.String(),
		"{next_version}", next.String(),
	).Replace(tpl)
}
