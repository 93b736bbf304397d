// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Scheduler Contributors

//go:build integration

package auth_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/dajbelshaw/Scheduler/internal/auth"
)

var _ = Describe("Account lifecycle", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		cleanupAccounts(ctx, env.pool)
	})

	Describe("Signup", func() {
		It("creates an account with an allocated Emoji ID", func() {
			result, err := env.Service.Signup(ctx, "", env.feedURL("alice"))
			Expect(err).NotTo(HaveOccurred())
			Expect(auth.ValidEmojiID(result.Account.EmojiID)).To(BeTrue())
			Expect(result.RecoveryCodes).To(HaveLen(auth.RecoveryCodeCount))
			Expect(result.Token).NotTo(BeEmpty())
		})

		It("honors a chosen Emoji ID", func() {
			id, err := env.Service.SuggestID(ctx)
			Expect(err).NotTo(HaveOccurred())

			result, err := env.Service.Signup(ctx, id, env.feedURL("bob"))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Account.EmojiID).To(Equal(id))
		})

		It("rejects a taken Emoji ID", func() {
			first, err := env.Service.Signup(ctx, "", env.feedURL("carol"))
			Expect(err).NotTo(HaveOccurred())

			_, err = env.Service.Signup(ctx, first.Account.EmojiID, env.feedURL("mallory"))
			Expect(err).To(HaveOccurred())
		})

		It("rejects a credential source that is not a live calendar", func() {
			_, err := env.Service.Signup(ctx, "", "http://127.0.0.1:1/dead.ics")
			Expect(err).To(HaveOccurred())
		})

		It("persists recovery codes only in hashed form", func() {
			result, err := env.Service.Signup(ctx, "", env.feedURL("erin"))
			Expect(err).NotTo(HaveOccurred())

			rows, err := env.pool.Query(ctx,
				"SELECT code_hash, code_salt FROM recovery_codes WHERE account_id = $1",
				result.Account.ID.String())
			Expect(err).NotTo(HaveOccurred())
			defer rows.Close()

			var stored int
			for rows.Next() {
				var hash, salt string
				Expect(rows.Scan(&hash, &salt)).To(Succeed())
				for _, plain := range result.RecoveryCodes {
					Expect(hash).NotTo(Equal(plain))
				}
				stored++
			}
			Expect(rows.Err()).NotTo(HaveOccurred())
			Expect(stored).To(Equal(auth.RecoveryCodeCount))
		})
	})

	Describe("Signin", func() {
		It("authenticates with the Emoji ID and credential URL", func() {
			signup, err := env.Service.Signup(ctx, "", env.feedURL("frank"))
			Expect(err).NotTo(HaveOccurred())

			signin, err := env.Service.Signin(ctx, signup.Account.EmojiID, env.feedURL("frank"))
			Expect(err).NotTo(HaveOccurred())
			Expect(signin.Account.ID).To(Equal(signup.Account.ID))
			Expect(signin.Token).NotTo(Equal(signup.Token))
		})

		It("rejects a wrong credential URL", func() {
			signup, err := env.Service.Signup(ctx, "", env.feedURL("grace"))
			Expect(err).NotTo(HaveOccurred())

			_, err = env.Service.Signin(ctx, signup.Account.EmojiID, env.feedURL("not-grace"))
			Expect(err).To(HaveOccurred())
		})

		It("rejects an unknown Emoji ID", func() {
			id, err := auth.RandomEmojiID()
			Expect(err).NotTo(HaveOccurred())

			_, err = env.Service.Signin(ctx, id, env.feedURL("nobody"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Sessions", func() {
		It("resolves a valid token and rejects it after signout", func() {
			signup, err := env.Service.Signup(ctx, "", env.feedURL("heidi"))
			Expect(err).NotTo(HaveOccurred())

			account, err := env.Service.Me(ctx, signup.Token)
			Expect(err).NotTo(HaveOccurred())
			Expect(account.ID).To(Equal(signup.Account.ID))

			Expect(env.Service.Signout(ctx, signup.Token)).To(Succeed())

			_, err = env.Service.Me(ctx, signup.Token)
			Expect(err).To(HaveOccurred())
		})

		It("purges expired sessions but keeps live ones", func() {
			signup, err := env.Service.Signup(ctx, "", env.feedURL("ivan"))
			Expect(err).NotTo(HaveOccurred())

			// Age one session past expiry directly; the purge query is
			// what's under test.
			_, err = env.pool.Exec(ctx,
				"UPDATE sessions SET expires_at = $1 WHERE token_hash = $2",
				time.Now().Add(-time.Hour), auth.HashSessionToken(signup.Token))
			Expect(err).NotTo(HaveOccurred())

			signin, err := env.Service.Signin(ctx, signup.Account.EmojiID, env.feedURL("ivan"))
			Expect(err).NotTo(HaveOccurred())

			purged, err := env.Sessions.DeleteExpired(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(purged).To(BeNumerically(">=", 1))

			_, err = env.Service.Me(ctx, signup.Token)
			Expect(err).To(HaveOccurred())

			account, err := env.Service.Me(ctx, signin.Token)
			Expect(err).NotTo(HaveOccurred())
			Expect(account.ID).To(Equal(signup.Account.ID))
		})
	})
})
