/*
Copyright (c) Amazon Web Services
Distributed under the terms of the MIT license
*/

package redirectpolicy

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const testOrigin = "https://indico.example.org/"

var _ = Describe("IsAllowed", func() {
	Context("with an empty trusted domain set", func() {
		empty := TrustedDomainSet{}

		DescribeTable("applies the same-origin baseline",
			func(candidate string, expected bool) {
				Expect(IsAllowed(candidate, testOrigin, empty)).To(Equal(expected))
			},
			Entry("relative path", "/talks/42", true),
			Entry("relative path with query", "/talks/42?tab=schedule", true),
			Entry("relative path without leading slash", "talks/42", true),
			Entry("empty reference", "", true),
			Entry("own host", "https://indico.example.org/event/1", true),
			Entry("own host with different case", "https://Indico.Example.org/event/1", true),
			Entry("own host over http", "http://indico.example.org/", true),
			Entry("own host with port", "https://indico.example.org:8443/x", true),
			Entry("foreign host", "https://chat.example.org/talks", false),
			Entry("scheme-relative foreign host", "//evil.com/x", false),
			Entry("triple-slash reference", "///evil.com/x", false),
			Entry("backslash trick", "/\\evil.com", false),
			Entry("header injection", "/x\r\nSet-Cookie: a=b", false),
			Entry("leading-space scheme-relative", " //evil.com/x", false),
			Entry("double leading-space scheme-relative", "  //evil.com", false),
			Entry("leading-space scheme-relative with userinfo", " //evil.com@x/", false),
			Entry("leading tab scheme-relative", "\t//evil.com/x", false),
			Entry("embedded tab scheme-relative", "/\t/evil.com/x", false),
			Entry("trailing space", "/talks/42 ", false),
			Entry("interior space in path", "/talks/42 summary", true),
			Entry("javascript scheme", "javascript:alert(1)", false),
			Entry("javascript scheme with own host", "javascript://indico.example.org/%0aalert(1)", false),
			Entry("userinfo pointing elsewhere", "https://indico.example.org@evil.com/", false),
			Entry("own host as subdomain of attacker", "https://indico.example.org.evil.com/", false),
		)
	})

	Context("with wildcard and exact patterns", func() {
		trusted := mustTrustedDomainSet(".fortrancon.org", "chat.example.org")

		DescribeTable("matches trusted domains",
			func(candidate string, expected bool) {
				Expect(IsAllowed(candidate, testOrigin, trusted)).To(Equal(expected))
			},
			Entry("wildcard subdomain", "https://sub.fortrancon.org/x", true),
			Entry("wildcard nested subdomain", "https://a.b.fortrancon.org/x", true),
			Entry("wildcard apex is not a subdomain", "https://fortrancon.org/x", false),
			Entry("wildcard as prefix of attacker host", "https://fortrancon.org.evil.com/x", false),
			Entry("wildcard without dotted boundary", "https://evilfortrancon.org/x", false),
			Entry("exact host", "https://chat.example.org/talks/42?tab=schedule", true),
			Entry("exact host with port", "https://chat.example.org:8443/talks", true),
			Entry("exact host upper case", "https://CHAT.example.org/", true),
			Entry("exact host with trailing dot", "https://chat.example.org./", true),
			Entry("exact does not cover siblings", "https://evil-chat.example.org/", false),
			Entry("exact does not cover parent", "https://example.org/", false),
			Entry("exact does not cover children", "https://a.chat.example.org/", false),
			Entry("trusted host with ftp scheme", "ftp://chat.example.org/", false),
			Entry("scheme-relative trusted host", "//sub.fortrancon.org/x", true),
		)
	})

	Context("with malformed input", func() {
		trusted := mustTrustedDomainSet(".example.org")

		DescribeTable("denies",
			func(candidate string) {
				Expect(IsAllowed(candidate, testOrigin, trusted)).To(BeFalse())
			},
			Entry("unterminated IPv6 literal", "https://[::1"),
			Entry("bad escape", "https://a.example.org/%zz"),
			Entry("bare colon", "::"),
			Entry("control character", "https://a.example.org/\x7f"),
			Entry("scheme without host", "https:"),
			Entry("invalid host label", "https://a_b!.example.org/"),
		)
	})
})

var _ = Describe("Policy", func() {
	It("rejects an origin without a host", func() {
		_, err := NewPolicy("", TrustedDomainSet{})
		Expect(err).To(HaveOccurred())
	})

	It("accepts a bare host as origin", func() {
		policy, err := NewPolicy("indico.example.org", TrustedDomainSet{})
		Expect(err).NotTo(HaveOccurred())
		Expect(policy.Allows("https://indico.example.org/x")).To(BeTrue())
		Expect(policy.Allows("https://other.example.org/x")).To(BeFalse())
	})

	It("agrees with IsAllowed", func() {
		trusted := mustTrustedDomainSet(".fortrancon.org")
		policy, err := NewPolicy(testOrigin, trusted)
		Expect(err).NotTo(HaveOccurred())

		for _, candidate := range []string{
			"/x",
			"https://indico.example.org/",
			"https://sub.fortrancon.org/x",
			"https://fortrancon.org.evil.com/x",
			"https://[::1",
		} {
			Expect(policy.Allows(candidate)).To(Equal(IsAllowed(candidate, testOrigin, trusted)), candidate)
		}
		Expect(policy.TrustedDomains().Strings()).To(Equal([]string{".fortrancon.org"}))
	})
})
