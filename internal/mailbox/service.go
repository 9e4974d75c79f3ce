// Package mailbox implements the mail operations of the application on top
// of the document store: registration, authentication, sending, drafts,
// folder access, batch deletion, new-mail checks and the user directory.
package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.io/infrasutra/bharatmail/internal/avatar"
	"github.io/infrasutra/bharatmail/internal/docstore"
	"github.io/infrasutra/bharatmail/internal/mailtime"
)

var (
	ErrInvalidUsername  = errors.New("username may contain only letters and numbers")
	ErrEmailTaken       = errors.New("email already taken")
	ErrUserNotFound     = errors.New("user not found")
	ErrWrongPassword    = errors.New("incorrect password")
	ErrReceiverNotFound = errors.New("receiver does not exist")
	ErrMailNotFound     = errors.New("mail not found")
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// Notifier is invoked after a mail lands in a receiver's inbox. Delivery is
// best effort; implementations must not block the send path on failure.
type Notifier interface {
	NotifyNewMail(ctx context.Context, receiver, mailID, sender, subject string)
}

type Service struct {
	store    docstore.Store
	notifier Notifier
	logger   *slog.Logger
	suffix   string
	now      func() time.Time
}

func NewService(store docstore.Store, notifier Notifier, logger *slog.Logger, suffix string) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logger,
		suffix:   suffix,
		now:      time.Now,
	}
}

// Qualify turns a bare username into a full address by appending the mail
// domain suffix; full addresses pass through lower-cased.
func (s *Service) Qualify(emailOrUsername string) string {
	trimmed := strings.ToLower(strings.TrimSpace(emailOrUsername))
	if trimmed == "" || strings.Contains(trimmed, "@") {
		return trimmed
	}
	return trimmed + s.suffix
}

// SuggestEmail proposes an alternative address when the requested one is
// taken.
func (s *Service) SuggestEmail(username string) string {
	return fmt.Sprintf("%s%d%s", username, 10+rand.Intn(90), s.suffix)
}

// Register creates a new account with a generated address and placeholder
// avatar. The username must be alphanumeric and the resulting address free.
func (s *Service) Register(ctx context.Context, firstName, lastName, username, password string) (User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if !usernamePattern.MatchString(username) {
		return User{}, ErrInvalidUsername
	}
	email := username + s.suffix
	if _, err := s.store.Get(ctx, docstore.UserPath(email)); err == nil {
		return User{}, ErrEmailTaken
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return User{}, fmt.Errorf("check email availability: %w", err)
	}

	user := User{
		FirstName:  strings.TrimSpace(firstName),
		LastName:   strings.TrimSpace(lastName),
		Username:   username,
		Email:      email,
		Password:   password,
		ProfilePic: avatar.Generate(firstName, lastName),
		CreatedAt:  mailtime.Format(s.now()),
	}
	if err := s.store.Set(ctx, docstore.UserPath(email), user); err != nil {
		return User{}, fmt.Errorf("store user: %w", err)
	}
	return user, nil
}

// Authenticate checks the password for an address or bare username.
func (s *Service) Authenticate(ctx context.Context, emailOrUsername, password string) (User, error) {
	email := s.Qualify(emailOrUsername)
	user, ok, err := s.Lookup(ctx, email)
	if err != nil {
		return User{}, err
	}
	if !ok {
		return User{}, ErrUserNotFound
	}
	if user.Password != password {
		return User{}, ErrWrongPassword
	}
	return user, nil
}

// Lookup resolves an address to its stored user record.
func (s *Service) Lookup(ctx context.Context, address string) (User, bool, error) {
	raw, err := s.store.Get(ctx, docstore.UserPath(address))
	if errors.Is(err, docstore.ErrNotFound) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, fmt.Errorf("lookup user: %w", err)
	}
	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return User{}, false, fmt.Errorf("decode user: %w", err)
	}
	return user, true, nil
}

// SendParams carries one outbound mail.
type SendParams struct {
	Sender      string
	Receiver    string
	CC          string
	BCC         string
	Subject     string
	Message     string
	Attachments []string
	ReplyTo     string
	Forward     bool
}

// Send validates the receiver, fans the mail out to the receiver's inbox and
// the sender's sent folder, and fires the new-mail notification. The
// returned id is the inbox push id. Notification failures never fail a send.
func (s *Service) Send(ctx context.Context, params SendParams) (string, error) {
	receiver := s.Qualify(params.Receiver)
	if receiver == "" {
		return "", ErrReceiverNotFound
	}
	if _, ok, err := s.Lookup(ctx, receiver); err != nil {
		return "", err
	} else if !ok {
		return "", ErrReceiverNotFound
	}

	mail := Mail{
		Sender:      params.Sender,
		Receiver:    receiver,
		CC:          params.CC,
		BCC:         params.BCC,
		Subject:     params.Subject,
		Message:     params.Message,
		Attachments: params.Attachments,
		Timestamp:   mailtime.Format(s.now()),
		ReplyTo:     params.ReplyTo,
		Forward:     params.Forward,
	}
	if mail.Attachments == nil {
		mail.Attachments = []string{}
	}

	id, err := s.store.Push(ctx, docstore.InboxPath(receiver), mail)
	if err != nil {
		return "", fmt.Errorf("deliver to inbox: %w", err)
	}
	if _, err := s.store.Push(ctx, docstore.SentPath(params.Sender), mail); err != nil {
		return "", fmt.Errorf("record sent mail: %w", err)
	}

	if s.notifier != nil {
		s.notifier.NotifyNewMail(ctx, receiver, id, mail.Sender, mail.Subject)
	}
	return id, nil
}

// SaveDraft upserts a draft. A caller-supplied id overwrites the existing
// draft under that id; no ownership check is made against the supplied id.
func (s *Service) SaveDraft(ctx context.Context, account, draftID string, draft Mail) (string, error) {
	if draftID == "" {
		draftID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	draft.Sender = account
	draft.Timestamp = mailtime.Format(s.now())
	if draft.Attachments == nil {
		draft.Attachments = []string{}
	}
	path := docstore.DraftsPath(account) + "/" + draftID
	if err := s.store.Set(ctx, path, draft); err != nil {
		return "", fmt.Errorf("save draft: %w", err)
	}
	return draftID, nil
}

// Folders returns the raw record sets of all three folders for an account.
func (s *Service) Folders(ctx context.Context, account string) (inbox, sent, drafts map[string]Mail, err error) {
	if inbox, err = s.folder(ctx, docstore.InboxPath(account)); err != nil {
		return nil, nil, nil, err
	}
	if sent, err = s.folder(ctx, docstore.SentPath(account)); err != nil {
		return nil, nil, nil, err
	}
	if drafts, err = s.folder(ctx, docstore.DraftsPath(account)); err != nil {
		return nil, nil, nil, err
	}
	return inbox, sent, drafts, nil
}

func (s *Service) folder(ctx context.Context, path string) (map[string]Mail, error) {
	children, err := s.store.Children(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("list folder: %w", err)
	}
	records := make(map[string]Mail, len(children))
	for id, raw := range children {
		var mail Mail
		if err := json.Unmarshal(raw, &mail); err != nil {
			s.logger.Warn("skipping undecodable mail record", "path", path, "id", id, "error", err)
			continue
		}
		records[id] = mail
	}
	return records, nil
}

// ReadMail looks a mail up by id in inbox, then sent, then drafts.
func (s *Service) ReadMail(ctx context.Context, account, id string) (Mail, error) {
	for _, base := range []string{
		docstore.InboxPath(account),
		docstore.SentPath(account),
		docstore.DraftsPath(account),
	} {
		raw, err := s.store.Get(ctx, base+"/"+id)
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return Mail{}, fmt.Errorf("read mail: %w", err)
		}
		var mail Mail
		if err := json.Unmarshal(raw, &mail); err != nil {
			return Mail{}, fmt.Errorf("decode mail: %w", err)
		}
		return mail, nil
	}
	return Mail{}, ErrMailNotFound
}

// DeleteMails removes each id from the first folder that holds it. Every id
// is attempted independently; missing ids are skipped and one failure does
// not abort the batch. Returns the count actually deleted.
func (s *Service) DeleteMails(ctx context.Context, account string, ids []string) int {
	deleted := 0
	for _, id := range ids {
		if id == "" {
			continue
		}
		for _, base := range []string{
			docstore.InboxPath(account),
			docstore.SentPath(account),
			docstore.DraftsPath(account),
		} {
			path := base + "/" + id
			if _, err := s.store.Get(ctx, path); err != nil {
				if !errors.Is(err, docstore.ErrNotFound) {
					s.logger.Warn("delete mail lookup failed", "path", path, "error", err)
				}
				continue
			}
			if err := s.store.Delete(ctx, path); err != nil {
				s.logger.Warn("delete mail failed", "path", path, "error", err)
				continue
			}
			deleted++
			break
		}
	}
	return deleted
}

// NewMail is one entry of a new-mail check result.
type NewMail struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Subject   string `json:"subject"`
	Timestamp string `json:"timestamp"`
}

// CheckNew returns how many inbox mails arrived after since, along with the
// five newest of them.
func (s *Service) CheckNew(ctx context.Context, account string, since time.Time) ([]NewMail, int, error) {
	records, err := s.folder(ctx, docstore.InboxPath(account))
	if err != nil {
		return nil, 0, err
	}
	type arrival struct {
		id   string
		mail Mail
		at   time.Time
	}
	var arrivals []arrival
	for id, mail := range records {
		if mail.Receiver != account {
			continue
		}
		at, ok := mailtime.Parse(mail.Timestamp)
		if !ok || !at.After(since) {
			continue
		}
		arrivals = append(arrivals, arrival{id: id, mail: mail, at: at})
	}
	sort.Slice(arrivals, func(i, j int) bool { return arrivals[i].at.After(arrivals[j].at) })

	newest := make([]NewMail, 0, 5)
	for _, a := range arrivals {
		if len(newest) == 5 {
			break
		}
		newest = append(newest, NewMail{
			ID:        a.id,
			Sender:    a.mail.Sender,
			Subject:   a.mail.Subject,
			Timestamp: a.mail.Timestamp,
		})
	}
	return newest, len(arrivals), nil
}

// ListUsers returns the directory of all accounts, sorted by address, for
// compose autocomplete.
func (s *Service) ListUsers(ctx context.Context) ([]DirectoryEntry, error) {
	children, err := s.store.Children(ctx, "users")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	entries := make([]DirectoryEntry, 0, len(children))
	for key, raw := range children {
		var user User
		if err := json.Unmarshal(raw, &user); err != nil {
			s.logger.Warn("skipping undecodable user record", "key", key, "error", err)
			continue
		}
		entries = append(entries, DirectoryEntry{Email: user.Email, Name: user.DisplayName()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Email < entries[j].Email })
	return entries, nil
}

// UpdateProfile applies a profile edit. An empty password keeps the current
// one; removePic regenerates the placeholder avatar from the new name.
func (s *Service) UpdateProfile(ctx context.Context, account, name, phone, password string, removePic bool) error {
	firstName, lastName, _ := strings.Cut(strings.TrimSpace(name), " ")
	updates := map[string]any{
		"first_name": firstName,
		"last_name":  strings.TrimSpace(lastName),
		"phone":      strings.TrimSpace(phone),
	}
	if password != "" {
		updates["password"] = password
	}
	if removePic {
		updates["profile_pic"] = avatar.Generate(firstName, lastName)
	}
	if err := s.store.Update(ctx, docstore.UserPath(account), updates); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// DeleteAccount removes the user record, all three folders and the push
// subscription.
func (s *Service) DeleteAccount(ctx context.Context, account string) error {
	for _, path := range []string{
		docstore.UserPath(account),
		docstore.InboxPath(account),
		docstore.SentPath(account),
		docstore.DraftsPath(account),
		docstore.NotificationsPath(account),
	} {
		if err := s.store.Delete(ctx, path); err != nil {
			return fmt.Errorf("delete account data: %w", err)
		}
	}
	return nil
}
