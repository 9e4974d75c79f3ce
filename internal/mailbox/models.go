package mailbox

import "strings"

// User is the stored account record. The password is an opaque secret
// compared by equality; hardening the store itself is out of scope here.
type User struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Phone      string `json:"phone"`
	ProfilePic string `json:"profile_pic"`
	CreatedAt  string `json:"created_at"`
}

// DisplayName is first+last, falling back to a title-cased address prefix
// for records with no name set.
func (u User) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name != "" {
		return name
	}
	return NameFromAddress(u.Email)
}

// NameFromAddress turns "first.last@domain" into "First Last".
func NameFromAddress(address string) string {
	local, _, _ := strings.Cut(address, "@")
	parts := strings.Split(strings.ReplaceAll(local, ".", " "), " ")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// Mail is a stored message. Immutable once created except for its presence
// in a folder; the id is the store-generated push id and lives outside the
// record itself.
type Mail struct {
	Sender      string   `json:"sender"`
	Receiver    string   `json:"receiver"`
	CC          string   `json:"cc,omitempty"`
	BCC         string   `json:"bcc,omitempty"`
	Subject     string   `json:"subject"`
	Message     string   `json:"message"`
	Attachments []string `json:"attachments"`
	Timestamp   string   `json:"timestamp"`
	ReplyTo     string   `json:"reply_to,omitempty"`
	Forward     bool     `json:"forward,omitempty"`
}

// DirectoryEntry is one row of the user directory used for compose
// autocomplete.
type DirectoryEntry struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}
