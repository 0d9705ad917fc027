// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Code that reads the time or waits on tickers accepts a [Clock]
// instead of calling the time package directly. [Real] is the standard
// library; [Fake] stands still until [FakeClock.Advance] is called.
//
// A goroutine that creates a ticker on a FakeClock races with the test
// that advances it. [FakeClock.WaitForTimers] blocks until the expected
// number of tickers and waits are registered, so the test advances only
// after the goroutine is listening:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go keepalive(c)
//	c.WaitForTimers(1)
//	c.Advance(30 * time.Second)
package clock
