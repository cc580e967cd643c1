package store

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// notation dictionary for key formats:
	// u  = user record
	// un = username index (lowercased)
	// m  = message record
	// c  = conversation index, ordered by creation time
	// q  = unseen queue, recipient first so a viewer can scan their backlog
	// All segments are separated by ":"; <pair> joins the two user ids
	// in sorted order with "|".
	userKeyFmt         = "u:%s"       // u:<user_id>
	usernameKeyFmt     = "un:%s"      // un:<username>
	messageKeyFmt      = "m:%s"       // m:<msg_id>
	conversationKeyFmt = "c:%s:%s:%s" // c:<pair>:<ts>:<msg_id>
	unseenKeyFmt       = "q:%s:%s:%s" // q:<recipient>:<sender>:<msg_id>

	userPrefix    = "u:"
	messagePrefix = "m:"

	tsPadWidth = 20
)

var idRegexp = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// validates an id is safe to embed in keys.
func ValidateID(id string) error {
	if !idRegexp.MatchString(id) {
		return fmt.Errorf("invalid id: %q", id)
	}
	return nil
}

func userKey(id string) []byte    { return []byte(fmt.Sprintf(userKeyFmt, id)) }
func usernameKey(n string) []byte { return []byte(fmt.Sprintf(usernameKeyFmt, strings.ToLower(n))) }
func messageKey(id string) []byte { return []byte(fmt.Sprintf(messageKeyFmt, id)) }

// returns the order-independent conversation id for two users.
func pairID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func conversationKey(a, b string, ts int64, msgID string) []byte {
	return []byte(fmt.Sprintf(conversationKeyFmt, pairID(a, b), formatTS(ts), msgID))
}

func conversationPrefix(a, b string) []byte {
	return []byte("c:" + pairID(a, b) + ":")
}

func unseenKey(recipient, sender, msgID string) []byte {
	return []byte(fmt.Sprintf(unseenKeyFmt, recipient, sender, msgID))
}

func unseenPrefix(recipient string) []byte {
	return []byte("q:" + recipient + ":")
}

func unseenPairPrefix(recipient, sender string) []byte {
	return []byte("q:" + recipient + ":" + sender + ":")
}

// zero-padded so lexical key order matches numeric order.
func formatTS(ts int64) string {
	return fmt.Sprintf("%0*d", tsPadWidth, ts)
}

// splits the trailing segments of an unseen key.
func parseUnseenKey(k []byte) (recipient, sender, msgID string, err error) {
	parts := strings.Split(string(k), ":")
	if len(parts) != 4 || parts[0] != "q" {
		return "", "", "", fmt.Errorf("invalid unseen key: %q", k)
	}
	return parts[1], parts[2], parts[3], nil
}

// returns the smallest key greater than every key with the given prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
