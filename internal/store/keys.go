package store

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const DefaultScope = "default"

// NormalizeScope validates a scope name. Scopes namespace every key so several
// gradebooks (e.g. one per account) can share one store file.
func NormalizeScope(scope string) (string, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return "", errors.New("scope is empty")
	}
	if strings.Contains(scope, "/") {
		return "", errors.Errorf("scope %q must not contain '/'", scope)
	}
	return scope, nil
}

type keyspace struct {
	scope string
}

func (k keyspace) snapshotPrefix() string { return k.scope + "/snapshot/" }
func (k keyspace) snapshot(ref string) string { return k.snapshotPrefix() + ref }
func (k keyspace) conflictPrefix() string { return k.scope + "/conflict/" }
func (k keyspace) conflict(ref string) string { return k.conflictPrefix() + ref }
func (k keyspace) queuePrefix() string { return k.scope + "/queue/" }
func (k keyspace) queueSeq() string { return k.scope + "/meta/queue-seq" }

// Zero padding keeps lexical key order equal to FIFO order.
func (k keyspace) queue(seq uint64) string { return fmt.Sprintf("%s%020d", k.queuePrefix(), seq) }
