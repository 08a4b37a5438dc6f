package identity

import (
	"encoding/json"
	"strings"

	"github.com/fraudguard/fraudguard/internal/model"
)

// IDStrategy locates the subject id in one place of an event.
type IDStrategy struct {
	Name    string
	Extract func(e *Event) (string, bool)
}

// DefaultIDStrategies are tried in order; the first non-blank string wins.
var DefaultIDStrategies = []IDStrategy{
	{Name: "subject.id", Extract: subjectMember("id")},
	{Name: "subject.user_id", Extract: subjectMember("user_id")},
	{Name: "subject.external_id", Extract: subjectMember("external_id")},
	{Name: "data.id", Extract: dataMember("id")},
}

func subjectMember(key string) func(e *Event) (string, bool) {
	return func(e *Event) (string, bool) {
		return e.subject.str(key)
	}
}

func dataMember(key string) func(e *Event) (string, bool) {
	return func(e *Event) (string, bool) {
		return e.data.str(key)
	}
}

// ExtractSubjectID runs strategies in order. Values that are blank after
// trimming are skipped; the winning value is returned as sent.
func ExtractSubjectID(e *Event, strategies []IDStrategy) (string, error) {
	for _, s := range strategies {
		id, ok := s.Extract(e)
		if ok && strings.TrimSpace(id) != "" {
			return id, nil
		}
	}
	return "", ErrMissingSubjectID
}

// ExtractProfile reads the optional profile fields from the event subject.
// Fields not present stay nil so the store keeps what it has.
func ExtractProfile(e *Event) model.UserProfile {
	profile := model.UserProfile{
		Email:     primaryEmail(e.subject),
		FirstName: e.subject.firstString("first_name", "firstName"),
		LastName:  e.subject.firstString("last_name", "lastName"),
	}
	if e.subject != nil {
		profile.Raw = e.rawSubj
	}
	return profile
}

func primaryEmail(subject object) *string {
	if subject == nil {
		return nil
	}
	if raw, ok := subject["email_addresses"]; ok {
		var addresses []object
		if err := json.Unmarshal(raw, &addresses); err == nil && len(addresses) > 0 {
			if email := addresses[0].firstString("email_address", "email"); email != nil {
				return email
			}
		}
	}
	return subject.firstString("email", "primary_email_address")
}
