package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/fieldsync/internal/mutation"
)

// ErrInvalidRewrite is returned by a Rewriter when substitution would
// produce a body that is not valid JSON.
var ErrInvalidRewrite = errors.New("rewritten body is not valid JSON")

// Rewriter substitutes a resolved identifier into a pending record.
//
// tempID and realID are already rendered as text. Implementations report
// whether anything changed; RewriteBody returns ErrInvalidRewrite (and the
// caller keeps the original body) when the result would not be valid JSON.
type Rewriter interface {
	RewriteURL(url, tempID, realID string) (string, bool)
	RewriteBody(body json.RawMessage, tempID, realID string) (json.RawMessage, bool, error)
}

// TextRewriter replaces every textual occurrence of the temp id.
//
// Substitution is not structural: any digit run equal to the temp id is
// replaced, including one embedded in unrelated data (temp id -1 also
// matches inside -15). Callers pick placeholders that cannot collide.
type TextRewriter struct{}

// RewriteURL replaces all occurrences of tempID in url.
func (TextRewriter) RewriteURL(url, tempID, realID string) (string, bool) {
	if !strings.Contains(url, tempID) {
		return url, false
	}
	return strings.ReplaceAll(url, tempID, realID), true
}

// RewriteBody replaces all occurrences of tempID in the body text.
func (TextRewriter) RewriteBody(body json.RawMessage, tempID, realID string) (json.RawMessage, bool, error) {
	text := string(body)
	if len(body) == 0 || !strings.Contains(text, tempID) {
		return body, false, nil
	}

	rewritten := strings.ReplaceAll(text, tempID, realID)
	if !json.Valid([]byte(rewritten)) {
		return body, false, ErrInvalidRewrite
	}
	return json.RawMessage(rewritten), true, nil
}

// resolveDependencies propagates realID into every pending record that
// references tempID. The url and body are checked independently; a body
// rewrite that would break JSON is dropped while a url rewrite is kept.
func (e *Engine) resolveDependencies(ctx context.Context, tempID int64, realID string) error {
	pending, err := e.queue.ListMutations(ctx, mutation.StatusPending)
	if err != nil {
		return fmt.Errorf("resolve dependencies: %w", err)
	}

	tempText := strconv.FormatInt(tempID, 10)
	for _, rec := range pending {
		url, urlChanged := e.rewriter.RewriteURL(rec.URL, tempText, realID)

		body, bodyChanged, err := e.rewriter.RewriteBody(rec.Body, tempText, realID)
		if err != nil {
			e.logger.Warn("body rewrite rejected, keeping original body",
				"mutation_id", rec.ID, "temp_id", tempID, "real_id", realID, "error", err)
			body, bodyChanged = rec.Body, false
		}

		if !urlChanged && !bodyChanged {
			continue
		}

		if err := e.queue.UpdateMutationTarget(ctx, rec.ID, url, body); err != nil {
			return fmt.Errorf("resolve dependencies: %w", err)
		}
		e.logger.Debug("mutation rewritten", "mutation_id", rec.ID, "temp_id", tempID, "real_id", realID)
	}

	return nil
}
