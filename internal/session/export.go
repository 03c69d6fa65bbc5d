package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Export serializes every persisted session into a human-readable report:
// grouped by domain, domains alphabetical, sessions within a domain by
// recency, with per-message timestamps and role labels.
func (s *Store) Export(ctx context.Context) (string, error) {
	recs, err := s.db.ListSessions(ctx, "")
	if err != nil {
		return "", fmt.Errorf("export sessions: %w", err)
	}

	byDomain := map[string][]Session{}
	for _, rec := range recs {
		sess, err := decode(rec)
		if err != nil {
			s.log.Warn("export skipping unreadable session record")
			continue
		}
		byDomain[sess.Domain] = append(byDomain[sess.Domain], sess)
	}

	domains := make([]string, 0, len(byDomain))
	for d := range byDomain {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	var b strings.Builder
	b.WriteString("Conversation export\n")
	b.WriteString(strings.Repeat("=", 60) + "\n")

	for _, domain := range domains {
		sessions := byDomain[domain]
		// ListSessions returns recency order globally; keep it per domain.
		sort.SliceStable(sessions, func(i, j int) bool {
			if !sessions[i].LastUpdated.Equal(sessions[j].LastUpdated) {
				return sessions[i].LastUpdated.After(sessions[j].LastUpdated)
			}
			return sessions[i].ID < sessions[j].ID
		})

		fmt.Fprintf(&b, "\nDomain: %s\n", domain)
		b.WriteString(strings.Repeat("-", 60) + "\n")

		for _, sess := range sessions {
			title := sess.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Fprintf(&b, "\nSession %s: %s (%d messages, updated %s)\n",
				sess.ID, title, len(sess.Messages),
				sess.LastUpdated.Format("2006-01-02 15:04:05"))
			for _, msg := range sess.Messages {
				label := "You"
				if msg.Role == RoleAssistant {
					label = "Assistant"
				}
				fmt.Fprintf(&b, "[%s] %s: %s\n",
					msg.Timestamp.Format("2006-01-02 15:04:05"), label, msg.Content)
			}
		}
	}

	return b.String(), nil
}
