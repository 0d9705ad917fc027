// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rpc frames the multiplexer's three message shapes over
// lib/value:
//
//	request       [0, msgid, method, params]
//	response      [1, msgid, error, result]
//	notification  [2, method, params]
//
// Messages are self-delimiting: there is no length prefix. A stream
// reader appends received bytes to a buffer and calls [DecodeNext]
// until it reports [ErrNeedMoreData], discarding the consumed prefix
// after each message. [Decode] is for buffers known to hold exactly
// one message, where truncation is the hard error [ErrTruncated].
//
// The protocol has no timeouts or retries. A requester chooses msgids
// and matches responses itself.
package rpc
