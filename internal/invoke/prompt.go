// Package invoke routes newly posted messages to the agent processes
// they address and performs the out-of-band invocation calls.
package invoke

import (
	"fmt"
	"strings"

	"github.com/user/talkto/internal/types"
)

// FormatInvocationPrompt builds the text delivered to an invoked agent.
// DM channels get direct-message framing, everything else gets mention
// framing. A non-empty recentContext is included verbatim under a
// "Recent messages:" header. Every prompt ends with the instruction to
// reply through the send_message tool; the invoked agent has no other
// channel back.
func FormatInvocationPrompt(senderName, channelName, content, recentContext string) string {
	var b strings.Builder

	if _, ok := types.DMTarget(channelName); ok {
		fmt.Fprintf(&b, "Direct message from %s in channel %q:\n\n%s\n", senderName, channelName, content)
	} else {
		fmt.Fprintf(&b, "%s mentioned you in %s:\n\n%s\n", senderName, channelName, content)
	}

	if recentContext != "" {
		fmt.Fprintf(&b, "\nRecent messages:\n%s\n", recentContext)
	}

	fmt.Fprintf(&b, "\nYou MUST reply using your TalkTo send_message tool with channel %q. Do NOT reply inline.", channelName)
	return b.String()
}
