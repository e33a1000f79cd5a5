/*
Copyright 2025 The Citewatch Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package provider

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SlidingWindow", func() {
	Context("within capacity", func() {
		It("should admit calls without blocking", func() {
			limiter := NewSlidingWindow(3, time.Minute)
			ctx := context.Background()

			start := time.Now()
			for i := 0; i < 3; i++ {
				Expect(limiter.Wait(ctx)).To(Succeed())
			}
			Expect(time.Since(start)).To(BeNumerically("<", 100*time.Millisecond))

			status := limiter.Status()
			Expect(status.Limit).To(Equal(3))
			Expect(status.Used).To(Equal(3))
		})
	})

	Context("over capacity", func() {
		It("should block until the oldest start ages out", func() {
			limiter := NewSlidingWindow(2, 200*time.Millisecond)
			ctx := context.Background()

			Expect(limiter.Wait(ctx)).To(Succeed())
			Expect(limiter.Wait(ctx)).To(Succeed())

			start := time.Now()
			Expect(limiter.Wait(ctx)).To(Succeed())
			elapsed := time.Since(start)

			Expect(elapsed).To(BeNumerically(">=", 100*time.Millisecond))
			Expect(elapsed).To(BeNumerically("<", 500*time.Millisecond))
		})

		It("should honor context cancellation while waiting", func() {
			limiter := NewSlidingWindow(1, time.Minute)

			Expect(limiter.Wait(context.Background())).To(Succeed())

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			err := limiter.Wait(ctx)
			Expect(err).To(MatchError(context.DeadlineExceeded))
		})
	})

	Context("aging", func() {
		It("should release slots as starts leave the window", func() {
			limiter := NewSlidingWindow(5, 100*time.Millisecond)
			ctx := context.Background()

			for i := 0; i < 5; i++ {
				Expect(limiter.Wait(ctx)).To(Succeed())
			}
			Expect(limiter.Status().Used).To(Equal(5))

			time.Sleep(150 * time.Millisecond)
			Expect(limiter.Status().Used).To(Equal(0))
		})
	})

	Context("construction", func() {
		It("should clamp capacity to at least one", func() {
			limiter := NewSlidingWindow(0, time.Minute)
			Expect(limiter.Status().Limit).To(Equal(1))
		})
	})
})

var _ = Describe("Cooldowns", func() {
	It("should report active cooldowns until they expire", func() {
		cooldowns := NewCooldowns()

		Expect(cooldowns.Active(PlatformGemini)).To(BeFalse())

		cooldowns.Trip(PlatformGemini, 100*time.Millisecond)
		Expect(cooldowns.Active(PlatformGemini)).To(BeTrue())
		Expect(cooldowns.Active(PlatformChatGPT)).To(BeFalse())

		time.Sleep(150 * time.Millisecond)
		Expect(cooldowns.Active(PlatformGemini)).To(BeFalse())
	})
})

var _ = Describe("Registry", func() {
	It("should start empty with no adapter to look up", func() {
		registry := NewRegistry()
		Expect(registry.Len()).To(Equal(0))

		_, ok := registry.Get(PlatformClaude)
		Expect(ok).To(BeFalse())
	})

	It("should know the eight platforms of this release", func() {
		platforms := AllPlatforms()
		Expect(platforms).To(HaveLen(8))
		Expect(IsKnownPlatform("perplexity")).To(BeTrue())
		Expect(IsKnownPlatform("altavista")).To(BeFalse())
	})
})

var _ = Describe("Error classification", func() {
	It("should mark transport, rate limit, timeout and upstream as retriable", func() {
		for _, kind := range []ErrorKind{ErrTransport, ErrRateLimited, ErrTimeout, ErrUpstream} {
			err := NewError(PlatformGrok, kind, "", nil)
			Expect(err.Retriable).To(BeTrue(), "kind %s should be retriable", kind)
		}
	})

	It("should mark auth, quota and malformed response as non-retriable", func() {
		for _, kind := range []ErrorKind{ErrAuth, ErrQuotaExceeded, ErrMalformedResponse} {
			err := NewError(PlatformGrok, kind, "", nil)
			Expect(err.Retriable).To(BeFalse(), "kind %s should not be retriable", kind)
		}
	})

	It("should map HTTP statuses onto kinds", func() {
		Expect(ErrorFromStatus(PlatformChatGPT, 401, "bad key").Kind).To(Equal(ErrAuth))
		Expect(ErrorFromStatus(PlatformChatGPT, 403, "").Kind).To(Equal(ErrAuth))
		Expect(ErrorFromStatus(PlatformChatGPT, 429, "slow down").Kind).To(Equal(ErrRateLimited))
		Expect(ErrorFromStatus(PlatformChatGPT, 500, "boom").Kind).To(Equal(ErrUpstream))
		Expect(ErrorFromStatus(PlatformChatGPT, 418, "teapot").Kind).To(Equal(ErrUpstream))
	})

	It("should classify context deadline as timeout", func() {
		err := AsError(PlatformClaude, context.DeadlineExceeded)
		Expect(err.Kind).To(Equal(ErrTimeout))
		Expect(err.Retriable).To(BeTrue())
	})
})
