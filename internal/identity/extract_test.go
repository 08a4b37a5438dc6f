package identity

import (
	"errors"
	"testing"
)

func mustDecode(t *testing.T, body string) *Event {
	t.Helper()
	e, err := DecodeEvent([]byte(body))
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	return e
}

func TestExtractSubjectID(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
	}{
		{
			name: "data.object.id",
			body: `{"type":"user.created","data":{"object":{"id":"u1"},"id":"evt"}}`,
			want: "u1",
		},
		{
			name: "data.user.id when object missing",
			body: `{"type":"user.created","data":{"user":{"id":"u2"}}}`,
			want: "u2",
		},
		{
			name: "object preferred over user",
			body: `{"type":"user.created","data":{"object":{"id":"o"},"user":{"id":"u"}}}`,
			want: "o",
		},
		{
			name: "array object falls through to user",
			body: `{"type":"user.created","data":{"object":[{"id":"x"}],"user":{"id":"u3"}}}`,
			want: "u3",
		},
		{
			name: "data itself is the subject",
			body: `{"type":"user.updated","data":{"id":"u4","email":"x@y.z"}}`,
			want: "u4",
		},
		{
			name: "user_id fallback",
			body: `{"type":"user.created","data":{"object":{"user_id":"u5"}}}`,
			want: "u5",
		},
		{
			name: "external_id fallback",
			body: `{"type":"user.created","data":{"object":{"id":"  ","external_id":"u6"}}}`,
			want: "u6",
		},
		{
			name: "data.id as last resort",
			body: `{"type":"user.created","data":{"object":{"name":"n"},"id":"u7"}}`,
			want: "u7",
		},
		{
			name: "non-string id skipped",
			body: `{"type":"user.created","data":{"object":{"id":42,"user_id":"u8"}}}`,
			want: "u8",
		},
		{
			name:    "nothing found",
			body:    `{"type":"user.created","data":{"object":{"email":"a@b.c"}}}`,
			wantErr: ErrMissingSubjectID,
		},
		{
			name:    "data is an array",
			body:    `{"type":"user.created","data":[{"id":"u9"}]}`,
			wantErr: ErrMissingSubjectID,
		},
		{
			name:    "no data",
			body:    `{"type":"session.created"}`,
			wantErr: ErrMissingSubjectID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractSubjectID(mustDecode(t, tt.body), DefaultIDStrategies)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ExtractSubjectID() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractSubjectID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIDStrategies_InIsolation(t *testing.T) {
	e := mustDecode(t, `{"type":"x","data":{"id":"d","object":{"id":"s","user_id":"su","external_id":"se"}}}`)

	want := map[string]string{
		"subject.id":          "s",
		"subject.user_id":     "su",
		"subject.external_id": "se",
		"data.id":             "d",
	}

	for _, s := range DefaultIDStrategies {
		got, ok := s.Extract(e)
		if !ok || got != want[s.Name] {
			t.Errorf("strategy %s = %q, %v; want %q", s.Name, got, ok, want[s.Name])
		}
	}
}

func TestExtractProfile(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		email     string
		firstName string
		lastName  string
	}{
		{
			name:      "email_addresses email_address",
			body:      `{"data":{"object":{"id":"u","email_addresses":[{"email_address":"a@b.com"},{"email_address":"c@d.com"}],"first_name":"A","last_name":"B"}}}`,
			email:     "a@b.com",
			firstName: "A",
			lastName:  "B",
		},
		{
			name:      "email_addresses email",
			body:      `{"data":{"object":{"id":"u","email_addresses":[{"email":"a@b.com"}],"first_name":"A"}}}`,
			email:     "a@b.com",
			firstName: "A",
		},
		{
			name:      "plain email and camel case names",
			body:      `{"data":{"id":"u","email":"e@x.io","firstName":"F","lastName":"L"}}`,
			email:     "e@x.io",
			firstName: "F",
			lastName:  "L",
		},
		{
			name:  "primary_email_address fallback",
			body:  `{"data":{"id":"u","email_addresses":[],"primary_email_address":"p@x.io"}}`,
			email: "p@x.io",
		},
		{
			name: "no profile fields",
			body: `{"data":{"id":"u"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ExtractProfile(mustDecode(t, tt.body))
			check := func(field string, got *string, want string) {
				t.Helper()
				switch {
				case want == "" && got != nil:
					t.Errorf("%s = %q, want unset", field, *got)
				case want != "" && (got == nil || *got != want):
					t.Errorf("%s = %v, want %q", field, got, want)
				}
			}
			check("email", p.Email, tt.email)
			check("firstName", p.FirstName, tt.firstName)
			check("lastName", p.LastName, tt.lastName)
			if len(p.Raw) == 0 {
				t.Error("raw subject should be kept")
			}
		})
	}
}

func TestDecodeEvent_Malformed(t *testing.T) {
	for _, body := range []string{"", "not json", `["a"]`} {
		if _, err := DecodeEvent([]byte(body)); !errors.Is(err, ErrMalformedEvent) {
			t.Errorf("DecodeEvent(%q) error = %v, want ErrMalformedEvent", body, err)
		}
	}
}
