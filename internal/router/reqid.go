package router

import (
	"math/rand"
	"strconv"
	"sync/atomic"
	"time"
)

var ridSeq atomic.Uint64

// newReqID returns a short log correlation id: base36 time, sequence and
// two random characters.
func newReqID() string {
	const alpha = "abcdefghijklmnopqrstuvwxyz0123456789"
	n := ridSeq.Add(1)
	suffix := []byte{alpha[rand.Intn(len(alpha))], alpha[rand.Intn(len(alpha))]}
	return strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.FormatUint(n, 36) + string(suffix)
}
