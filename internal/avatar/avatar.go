// Package avatar renders placeholder avatars for users without an uploaded
// picture. Two color choices live here and must not be conflated: Generate
// picks a random palette color once at registration (stored with the user),
// while ColorFor derives a stable color from an address for feed rendering,
// so the same correspondent always gets the same accent.
package avatar

import (
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"unicode"
)

// Palette holds the background colors used for generated profile pictures.
var Palette = []string{
	"#FF5733", "#33A1FF", "#28A745", "#FFC300",
	"#8E44AD", "#FF69B4", "#20B2AA", "#FF4500",
}

// Initials builds the one-or-two letter monogram for a name pair, falling
// back to "U" when both parts are empty.
func Initials(first, last string) string {
	var b strings.Builder
	if first != "" {
		b.WriteRune(unicode.ToUpper(firstRune(first)))
	}
	if last != "" {
		b.WriteRune(unicode.ToUpper(firstRune(last)))
	}
	if b.Len() == 0 {
		return "U"
	}
	return b.String()
}

// InitialsFromAddress derives a deterministic monogram from a bare address
// when no user record resolves: the first letters of the first two dotted
// parts of the local part, or the first two characters of a single part.
func InitialsFromAddress(address string) string {
	local, _, _ := strings.Cut(address, "@")
	parts := strings.SplitN(local, ".", 2)
	if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
		return Initials(parts[0], parts[1])
	}
	runes := []rune(local)
	switch {
	case len(runes) >= 2:
		return strings.ToUpper(string(runes[:2]))
	case len(runes) == 1:
		return strings.ToUpper(string(runes[:1]))
	default:
		return "U"
	}
}

// ColorFor returns the deterministic palette color for an address.
func ColorFor(address string) string {
	h := fnv.New32a()
	h.Write([]byte(address))
	return Palette[h.Sum32()%uint32(len(Palette))]
}

// Generate produces an inline SVG data URL showing the user's initials on a
// randomly chosen palette background. The choice is made once and persisted,
// so the avatar is stable after registration.
func Generate(first, last string) string {
	return render(Initials(first, last), Palette[rand.Intn(len(Palette))])
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 'U'
}

func render(initials, background string) string {
	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="200" height="200">`+
		`<rect width="200" height="200" fill="%s"/>`+
		`<text x="100" y="100" dy=".35em" text-anchor="middle" `+
		`font-family="Helvetica, Arial, sans-serif" font-size="80" fill="#fff">%s</text></svg>`,
		background, initials)
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}
