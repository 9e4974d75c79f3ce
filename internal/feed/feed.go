// Package feed turns raw per-folder mail records into the categorized,
// chronologically merged view the UI consumes. Assembly is read-only over
// its inputs and deterministic given the same records, search query and
// address resolution.
package feed

import (
	"sort"
	"strings"
	"time"

	"github.io/infrasutra/bharatmail/internal/avatar"
	"github.io/infrasutra/bharatmail/internal/category"
	"github.io/infrasutra/bharatmail/internal/mailbox"
	"github.io/infrasutra/bharatmail/internal/mailtime"
)

const previewLength = 100

// Resolver maps an address to its user record. Unresolved addresses fall
// back to deterministic initials and colors derived from the address alone.
type Resolver func(address string) (mailbox.User, bool)

// Person is the display identity attached to a mail's sender or receiver.
type Person struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Initials string `json:"initials"`
	Color    string `json:"color"`
	Avatar   string `json:"avatar,omitempty"`
}

// Item is one enhanced mail record in the feed.
type Item struct {
	ID          string         `json:"id"`
	Sender      Person         `json:"sender"`
	Receiver    Person         `json:"receiver"`
	CC          string         `json:"cc,omitempty"`
	BCC         string         `json:"bcc,omitempty"`
	Subject     string         `json:"subject"`
	Message     string         `json:"message"`
	Preview     string         `json:"preview"`
	Attachments []string       `json:"attachments"`
	Timestamp   string         `json:"timestamp"`
	DisplayTime string         `json:"display_time"`
	Category    category.Label `json:"category,omitempty"`

	at time.Time
}

// View is the assembled feed: the search-filtered inbox partitioned into
// categories plus flat sent and draft lists, each newest first.
type View struct {
	Inbox      []Item `json:"Inbox"`
	Promotions []Item `json:"Promotions"`
	Social     []Item `json:"Social"`
	Updates    []Item `json:"Updates"`
	Sent       []Item `json:"Sent"`
	Drafts     []Item `json:"Drafts"`
}

// Assemble builds the feed for the active account. Inbox records are
// defensively re-checked against the account, enhanced, sorted newest first
// (unparseable timestamps oldest), filtered by the search query, and
// partitioned into category buckets preserving the sorted order. Sent and
// drafts stay flat.
func Assemble(account string, inbox, sent, drafts map[string]mailbox.Mail, search string, resolve Resolver, now time.Time) View {
	inboxItems := make([]Item, 0, len(inbox))
	for id, mail := range inbox {
		if mail.Receiver != account {
			continue
		}
		inboxItems = append(inboxItems, enhance(id, mail, resolve, now))
	}
	sentItems := enhanceAll(sent, resolve, now)
	draftItems := enhanceAll(drafts, resolve, now)

	sortNewestFirst(inboxItems)
	sortNewestFirst(sentItems)
	sortNewestFirst(draftItems)

	inboxItems = filterSearch(inboxItems, search)

	view := View{
		Inbox:      []Item{},
		Promotions: []Item{},
		Social:     []Item{},
		Updates:    []Item{},
		Sent:       sentItems,
		Drafts:     draftItems,
	}
	for _, item := range inboxItems {
		item.Category = category.Categorize(item.Subject, item.Message)
		switch item.Category {
		case category.Promotions:
			view.Promotions = append(view.Promotions, item)
		case category.Social:
			view.Social = append(view.Social, item)
		case category.Updates:
			view.Updates = append(view.Updates, item)
		default:
			view.Inbox = append(view.Inbox, item)
		}
	}
	return view
}

func enhanceAll(records map[string]mailbox.Mail, resolve Resolver, now time.Time) []Item {
	items := make([]Item, 0, len(records))
	for id, mail := range records {
		items = append(items, enhance(id, mail, resolve, now))
	}
	return items
}

func enhance(id string, mail mailbox.Mail, resolve Resolver, now time.Time) Item {
	at, _ := mailtime.Parse(mail.Timestamp)
	attachments := mail.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	return Item{
		ID:          id,
		Sender:      personFor(mail.Sender, resolve),
		Receiver:    personFor(mail.Receiver, resolve),
		CC:          mail.CC,
		BCC:         mail.BCC,
		Subject:     mail.Subject,
		Message:     mail.Message,
		Preview:     preview(mail.Message),
		Attachments: attachments,
		Timestamp:   mail.Timestamp,
		DisplayTime: mailtime.Display(at, now),
		at:          at,
	}
}

func personFor(address string, resolve Resolver) Person {
	person := Person{
		Address:  address,
		Name:     mailbox.NameFromAddress(address),
		Initials: avatar.InitialsFromAddress(address),
		Color:    avatar.ColorFor(address),
	}
	if resolve == nil {
		return person
	}
	if user, ok := resolve(address); ok {
		person.Name = user.DisplayName()
		person.Initials = avatar.Initials(user.FirstName, user.LastName)
		person.Avatar = user.ProfilePic
	}
	return person
}

func preview(message string) string {
	runes := []rune(message)
	if len(runes) <= previewLength {
		return message
	}
	return string(runes[:previewLength]) + "..."
}

func sortNewestFirst(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].at.Equal(items[j].at) {
			return items[i].at.After(items[j].at)
		}
		// Records come out of a map; tie-break on id so assembly stays
		// deterministic for equal timestamps.
		return items[i].ID < items[j].ID
	})
}

func filterSearch(items []Item, search string) []Item {
	query := strings.ToLower(strings.TrimSpace(search))
	if query == "" {
		return items
	}
	filtered := items[:0:0]
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Subject), query) ||
			strings.Contains(strings.ToLower(item.Message), query) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}
