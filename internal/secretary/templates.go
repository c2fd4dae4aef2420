package secretary

import (
	"errors"
	"strings"
)

const brandLinkPlaceholder = "{brand_link}"

// Templates are the pieces of the automatic reply.
// Reply text is Header + (Online | Offline) + Action.
type Templates struct {
	Header    string
	BrandLink string
	Online    string
	Offline   string
	Action    string
}

// Compose builds the reply for the given reachability.
func (t Templates) Compose(reachable bool) string {
	variant := t.Offline
	if reachable {
		variant = t.Online
	}
	header := strings.ReplaceAll(t.Header, brandLinkPlaceholder, t.BrandLink)
	return header + variant + t.Action
}

func (t Templates) Validate() error {
	var errs []error
	if strings.TrimSpace(t.Online) == "" {
		errs = append(errs, errors.New("online reply text is empty"))
	}
	if strings.TrimSpace(t.Offline) == "" {
		errs = append(errs, errors.New("offline reply text is empty"))
	}
	return errors.Join(errs...)
}
