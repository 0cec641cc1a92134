// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vocab

import "errors"

// Sentinel errors for vocabulary API failures.
//
// Callers should test with errors.Is; all client methods wrap these
// with request context.
var (
	// ErrNotFound indicates the concept does not exist in the vocabulary.
	ErrNotFound = errors.New("concept not found")

	// ErrRateLimited indicates the upstream API rejected the request
	// due to rate limiting. The client retries these internally; this
	// surfaces only after retries are exhausted.
	ErrRateLimited = errors.New("vocabulary api rate limited")

	// ErrUpstream indicates a server-side failure at the vocabulary API.
	ErrUpstream = errors.New("vocabulary api upstream error")

	// ErrInvalidResponse indicates the API returned a payload that
	// could not be decoded.
	ErrInvalidResponse = errors.New("vocabulary api invalid response")
)
