package rediskey

import "fmt"

// Key prefixes shared by every process talking to the same Redis.
const (
	SequencePrefix = "seq"
	WithdrawalCode = "WD"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildDailySequenceKey returns "seq:{prefix}:{yymmdd}".
func BuildDailySequenceKey(prefix, day string) string {
	return NamespaceKey(SequencePrefix, NamespaceKey(prefix, day))
}
