// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Scheduler Contributors

//go:build integration

package auth_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/dajbelshaw/Scheduler/internal/auth"
)

var _ = Describe("Account recovery", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		cleanupAccounts(ctx, env.pool)
	})

	It("authenticates with a one-time recovery code", func() {
		signup, err := env.Service.Signup(ctx, "", env.feedURL("judy"))
		Expect(err).NotTo(HaveOccurred())

		result, err := env.Recovery.Recover(ctx, signup.Account.EmojiID, signup.RecoveryCodes[0], "")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Account.ID).To(Equal(signup.Account.ID))
		Expect(result.Remaining).To(Equal(auth.RecoveryCodeCount - 1))
		Expect(result.Warning).To(BeEmpty())

		account, err := env.Service.Me(ctx, result.Token)
		Expect(err).NotTo(HaveOccurred())
		Expect(account.ID).To(Equal(signup.Account.ID))
	})

	It("consumes each code exactly once", func() {
		signup, err := env.Service.Signup(ctx, "", env.feedURL("kevin"))
		Expect(err).NotTo(HaveOccurred())

		code := signup.RecoveryCodes[2]
		_, err = env.Recovery.Recover(ctx, signup.Account.EmojiID, code, "")
		Expect(err).NotTo(HaveOccurred())

		_, err = env.Recovery.Recover(ctx, signup.Account.EmojiID, code, "")
		Expect(err).To(HaveOccurred(), "a spent code must not work twice")
	})

	It("leaves the other codes usable", func() {
		signup, err := env.Service.Signup(ctx, "", env.feedURL("laura"))
		Expect(err).NotTo(HaveOccurred())

		_, err = env.Recovery.Recover(ctx, signup.Account.EmojiID, signup.RecoveryCodes[0], "")
		Expect(err).NotTo(HaveOccurred())

		result, err := env.Recovery.Recover(ctx, signup.Account.EmojiID, signup.RecoveryCodes[1], "")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Remaining).To(Equal(auth.RecoveryCodeCount - 2))
	})

	It("warns when the last code is consumed", func() {
		signup, err := env.Service.Signup(ctx, "", env.feedURL("mike"))
		Expect(err).NotTo(HaveOccurred())

		for i, code := range signup.RecoveryCodes {
			result, err := env.Recovery.Recover(ctx, signup.Account.EmojiID, code, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Remaining).To(Equal(auth.RecoveryCodeCount - 1 - i))
			if i == len(signup.RecoveryCodes)-1 {
				Expect(result.Warning).To(Equal(auth.WarnNoRecoveryCodesLeft))
			} else {
				Expect(result.Warning).To(BeEmpty())
			}
		}
	})

	It("rotates the credential when a new source is supplied", func() {
		signup, err := env.Service.Signup(ctx, "", env.feedURL("nina"))
		Expect(err).NotTo(HaveOccurred())

		_, err = env.Recovery.Recover(ctx, signup.Account.EmojiID, signup.RecoveryCodes[0], env.feedURL("nina-new"))
		Expect(err).NotTo(HaveOccurred())

		_, err = env.Service.Signin(ctx, signup.Account.EmojiID, env.feedURL("nina"))
		Expect(err).To(HaveOccurred(), "old credential must stop working")

		_, err = env.Service.Signin(ctx, signup.Account.EmojiID, env.feedURL("nina-new"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("yields exactly one success when two callers race on the same code", func() {
		signup, err := env.Service.Signup(ctx, "", env.feedURL("peggy"))
		Expect(err).NotTo(HaveOccurred())

		code := signup.RecoveryCodes[0]
		results := make(chan error, 2)
		for range 2 {
			go func() {
				defer GinkgoRecover()
				_, recoverErr := env.Recovery.Recover(ctx, signup.Account.EmojiID, code, "")
				results <- recoverErr
			}()
		}

		var successes, failures int
		for range 2 {
			if <-results == nil {
				successes++
			} else {
				failures++
			}
		}
		Expect(successes).To(Equal(1), "the row lock must serialize the two consumers")
		Expect(failures).To(Equal(1))

		count, err := env.Codes.CountUnused(ctx, signup.Account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(auth.RecoveryCodeCount - 1))
	})

	It("rejects a wrong code without consuming anything", func() {
		signup, err := env.Service.Signup(ctx, "", env.feedURL("oscar"))
		Expect(err).NotTo(HaveOccurred())

		_, err = env.Recovery.Recover(ctx, signup.Account.EmojiID, "0123456789abcdef0123456789abcdef", "")
		Expect(err).To(HaveOccurred())

		count, err := env.Codes.CountUnused(ctx, signup.Account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(auth.RecoveryCodeCount))
	})
})
