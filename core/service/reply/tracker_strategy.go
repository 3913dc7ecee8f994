package reply

import (
	"net/mail"
	"regexp"
	"strings"

	"reply_tracker/core/domain"
)

// SenderMatch selects how a From header is compared to allowed addresses.
type SenderMatch string

const (
	// SenderExact compares the bare sender address for equality.
	SenderExact SenderMatch = "exact"
	// SenderContains accepts any From header containing an allowed address.
	SenderContains SenderMatch = "contains"
)

// ParseSenderMatch falls back to SenderExact for unknown values.
func ParseSenderMatch(s string) SenderMatch {
	if SenderMatch(strings.ToLower(strings.TrimSpace(s))) == SenderContains {
		return SenderContains
	}
	return SenderExact
}

// Strategy is the heuristic matching rule: the sender must be allowed for
// the submission's lender and the business name must appear in the message.
type Strategy struct {
	Directory   *domain.LenderDirectory
	SenderMatch SenderMatch
	// SearchSubject and SearchBody choose where the business name is looked for.
	SearchSubject bool
	SearchBody    bool
	// UseRecipientEmails also allows the addresses the submission was sent to.
	UseRecipientEmails bool
}

// DefaultStrategy matches exact addresses and searches subject and body.
func DefaultStrategy(dir *domain.LenderDirectory) Strategy {
	return Strategy{
		Directory:          dir,
		SenderMatch:        SenderExact,
		SearchSubject:      true,
		SearchBody:         true,
		UseRecipientEmails: true,
	}
}

// InboundMessage is the part of a mailbox message the strategy looks at.
type InboundMessage struct {
	From    string
	Subject string
	Body    string
}

// FirstMatch returns the index of the first submission msg matches.
func (s Strategy) FirstMatch(subs []*domain.Submission, msg InboundMessage) (int, bool) {
	for i, sub := range subs {
		if s.Matches(sub, msg) {
			return i, true
		}
	}
	return -1, false
}

func (s Strategy) Matches(sub *domain.Submission, msg InboundMessage) bool {
	return s.senderAllowed(sub, msg.From) && s.mentionsBusiness(sub, msg)
}

func (s Strategy) senderAllowed(sub *domain.Submission, from string) bool {
	if s.SenderMatch == SenderContains {
		raw := strings.ToLower(from)
		for _, allowed := range s.allowedAddresses(sub) {
			if strings.Contains(raw, allowed) {
				return true
			}
		}
		return false
	}

	addr := SenderAddress(from)
	if addr == "" {
		return false
	}
	if s.Directory.Accepts(sub.LenderKey(), addr) {
		return true
	}
	if s.UseRecipientEmails {
		for _, e := range sub.RecipientEmails {
			if domain.NormalizeAddress(e) == addr {
				return true
			}
		}
	}
	return false
}

func (s Strategy) allowedAddresses(sub *domain.Submission) []string {
	allowed := s.Directory.Emails(sub.LenderKey())
	if s.UseRecipientEmails {
		for _, e := range sub.RecipientEmails {
			if e = domain.NormalizeAddress(e); e != "" {
				allowed = append(allowed, e)
			}
		}
	}
	return allowed
}

func (s Strategy) mentionsBusiness(sub *domain.Submission, msg InboundMessage) bool {
	name := strings.ToLower(strings.TrimSpace(sub.BusinessName))
	if name == "" {
		return false
	}
	if s.SearchSubject && strings.Contains(strings.ToLower(msg.Subject), name) {
		return true
	}
	return s.SearchBody && strings.Contains(strings.ToLower(msg.Body), name)
}

var angleAddrPattern = regexp.MustCompile(`<([^<>]+)>`)

// SenderAddress extracts the bare, lower-cased address from a From header:
// the angle-bracket address when present, else the raw value.
func SenderAddress(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(from); err == nil {
		return domain.NormalizeAddress(addr.Address)
	}
	if m := angleAddrPattern.FindStringSubmatch(from); m != nil {
		return domain.NormalizeAddress(m[1])
	}
	return domain.NormalizeAddress(from)
}
