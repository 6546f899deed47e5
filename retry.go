// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package wharfq

import (
	"math"
	"math/rand/v2"
	"time"
)

// RetryDelayFunc calculates the retry delay for a failed job given the
// number of attempts already made, the error returned by the handler, and
// the job itself.
type RetryDelayFunc func(n int, e error, j *Job) time.Duration

// DefaultRetryDelayFunc is the default RetryDelayFunc. It uses the same
// exponential backoff formula Sidekiq popularized.
func DefaultRetryDelayFunc(n int, e error, j *Job) time.Duration {
	s := int(math.Pow(float64(n), 4)) + 15 + (rand.IntN(30) * (n + 1))
	return time.Duration(s) * time.Second
}

func defaultIsFailureFunc(err error) bool { return err != nil }
