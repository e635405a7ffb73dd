package console

import (
	"context"
	"html"
	"strings"

	"github.com/orconsole/server/internal/apierr"
)

// SearchParams narrows a full-text query over messages. Limit is clamped to
// MaxSearchLimit and Offset floors at zero regardless of input.
type SearchParams struct {
	Query       string
	SessionType string
	SessionID   string
	ModelID     string
	StartDate   string
	EndDate     string
	Limit       int
	Offset      int
}

const (
	MaxSearchLimit     = 200
	defaultSearchLimit = 50
)

// SearchResult is one ranked hit. Snippet carries <mark> highlights and
// Rank is BM25 relevance, higher is better.
type SearchResult struct {
	MessageID    string  `gorm:"column:message_id" json:"message_id"`
	SessionID    string  `gorm:"column:session_id" json:"session_id"`
	Role         string  `json:"role"`
	Content      string  `json:"content"`
	CreatedAt    string  `gorm:"column:created_at" json:"created_at"`
	SessionType  string  `gorm:"column:session_type" json:"session_type"`
	SessionTitle *string `gorm:"column:session_title" json:"session_title"`
	Snippet      string  `json:"snippet"`
	Rank         float64 `json:"rank"`
}

// SearchMessages runs an FTS5 query supporting phrases, exclusion, prefix
// and boolean operators. Results order by rank descending, then recency.
func (r *Repo) SearchMessages(ctx context.Context, p SearchParams) ([]SearchResult, error) {
	query := strings.TrimSpace(p.Query)
	if query == "" {
		return nil, apierr.BadRequest(apierr.CodeBadQuery, "search query must not be empty", nil)
	}
	limit := p.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}

	// Sentinel marks (STX/ETX) survive the HTML escape of the content
	// around them and are swapped for <mark> tags afterwards.
	sql := `SELECT m.id AS message_id, m.session_id, m.role, m.content, m.created_at,
		s.session_type, s.title AS session_title,
		snippet(messages_fts, 0, char(2), char(3), '…', 32) AS snippet,
		-bm25(messages_fts) AS rank
	FROM messages_fts f
	JOIN messages m ON m.rowid = f.rowid
	JOIN sessions s ON s.id = m.session_id
	WHERE messages_fts MATCH ?`
	args := []any{query}

	if p.SessionType != "" {
		sql += " AND s.session_type = ?"
		args = append(args, p.SessionType)
	}
	if p.SessionID != "" {
		sql += " AND m.session_id = ?"
		args = append(args, p.SessionID)
	}
	if p.ModelID != "" {
		sql += " AND EXISTS (SELECT 1 FROM usage_logs ul WHERE ul.session_id = m.session_id AND ul.model_id = ?)"
		args = append(args, p.ModelID)
	}
	if p.StartDate != "" {
		sql += " AND m.created_at >= ?"
		args = append(args, p.StartDate)
	}
	if p.EndDate != "" {
		sql += " AND m.created_at < date(?, '+1 day')"
		args = append(args, p.EndDate)
	}

	sql += " ORDER BY rank DESC, m.created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var out []SearchResult
	if err := r.db.WithContext(ctx).Raw(sql, args...).Scan(&out).Error; err != nil {
		if isBadQueryErr(err) {
			return nil, apierr.BadRequest(apierr.CodeBadQuery, "invalid search query syntax", map[string]any{"query": query})
		}
		return nil, err
	}
	for i := range out {
		out[i].Snippet = renderSnippet(out[i].Snippet)
	}
	return out, nil
}

// renderSnippet HTML-escapes the message content of a snippet while turning
// the sentinel marks into <mark> tags, so stored markup never reaches the
// client unescaped.
func renderSnippet(s string) string {
	s = html.EscapeString(s)
	s = strings.ReplaceAll(s, "\x02", "<mark>")
	s = strings.ReplaceAll(s, "\x03", "</mark>")
	return s
}

// isBadQueryErr recognizes FTS5 parse failures from user-supplied syntax.
func isBadQueryErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "fts5") ||
		strings.Contains(msg, "malformed MATCH") ||
		strings.Contains(msg, "unterminated string") ||
		strings.Contains(msg, "syntax error")
}
