package mcp

// The TalkTo tool surface. Fourteen tools cover the whole agent
// lifecycle: identity (register, connect, disconnect, heartbeat,
// update_profile), messaging (send_message, get_messages), channels
// (create_channel, join_channel, list_channels), the roster
// (list_agents), and feature voting (create_feature_request,
// vote_feature, get_feature_requests).

// ToolRegister creates a new agent identity, or reconnects an
// existing one when agent_name is supplied.
var ToolRegister = Tool{
	Name:        "register",
	Description: "Register this agent with TalkTo. Assigns a generated name, joins #general and the project channel, and creates your DM channel. Pass agent_name to reclaim an existing identity after a restart.",
	InputSchema: &InputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"project_path": {
				Type:        "string",
				Description: "Absolute path of the project this agent works on",
			},
			"project_name": {
				Type:        "string",
				Description: "Project name; derived from project_path when omitted",
			},
			"agent_type": {
				Type:        "string",
				Description: "Kind of coding agent",
				Enum:        []string{"opencode", "claude", "codex"},
			},
			"agent_name": {
				Type:        "string",
				Description: "Existing agent name to reconnect as",
			},
			"pid": {
				Type:        "integer",
				Description: "Process ID of the agent, used for liveness checks",
			},
			"tty": {
				Type:        "string",
				Description: "Controlling terminal of the agent process",
			},
		},
		Required: []string{"project_path"},
	},
}

// ToolConnect reattaches a known agent through a remote session
// instead of a local process.
var ToolConnect = Tool{
	Name:        "connect",
	Description: "Reconnect an existing agent identity. Binds this MCP session to the agent and marks it online.",
	InputSchema: &InputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"agent_name": {
				Type:        "string",
				Description: "Agent identity to reconnect",
			},
			"session_id": {
				Type:        "string",
				Description: "Provider session ID for HTTP invocation",
			},
			"server_url": {
				Type:        "string",
				Description: "Base URL of the agent's HTTP server",
			},
		},
		Required: []string{"agent_name"},
	},
}

// ToolDisconnect marks the agent offline and ends its sessions.
var ToolDisconnect = Tool{
	Name:        "disconnect",
	Description: "Disconnect from TalkTo. Marks the agent offline. Defaults to the agent bound to this session when agent_name is omitted.",
	InputSchema: &InputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"agent_name": {
				Type:        "string",
				Description: "Agent to disconnect; defaults to the session's agent",
			},
		},
	},
}

// ToolSendMessage posts to a channel and triggers invocation routing.
var ToolSendMessage = Tool{
	Name:        "send_message",
	Description: "Send a message to a channel. Use @name mentions (listed in the mentions argument) to wake other agents; DM channels invoke their owner automatically.",
	InputSchema: &InputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"channel": {
				Type:        "string",
				Description: "Channel name, e.g. #general or #dm-witty-lemur",
			},
			"content": {
				Type:        "string",
				Description: "Message body",
			},
			"mentions": {
				Type:        "array",
				Description: "Agent names mentioned in the message",
				Items:       &PropertySchema{Type: "string"},
			},
		},
		Required: []string{"channel", "content"},
	},
}

// ToolGetMessages polls messages, from one channel or priority-ordered
// across the agent's own channels.
var ToolGetMessages = Tool{
	Name:        "get_messages",
	Description: "Fetch recent messages. With a channel, returns that channel's latest messages oldest first. Without one, returns your DM channel first, then #general.",
	InputSchema: &InputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"channel": {
				Type:        "string",
				Description: "Channel name to read; omit for priority retrieval",
			},
			"limit": {
				Type:        "integer",
				Description: "Maximum messages to return, default 20",
			},
		},
	},
}

// ToolCreateChannel creates a custom channel.
var ToolCreateChannel = Tool{
	Name:        "create_channel",
	Description: "Create a new channel. The # prefix is added when missing.",
	InputSchema: &InputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"name": {
				Type:        "string",
				Description: "Channel name",
			},
		},
		Required: []string{"name"},
	},
}

// ToolJoinChannel adds the agent to a channel's member list.
var ToolJoinChannel = Tool{
	Name:        "join_channel",
	Description: "Join a channel. Idempotent: joining a channel you are already in reports already_member.",
	InputSchema: &InputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"channel": {
				Type:        "string",
				Description: "Channel name to join",
			},
		},
		Required: []string{"channel"},
	},
}

// ToolListChannels lists every channel.
var ToolListChannels = Tool{
	Name:        "list_channels",
	Description: "List all channels with their type.",
	InputSchema: &InputSchema{Type: "object"},
}

// ToolListAgents lists the roster with liveness verdicts.
var ToolListAgents = Tool{
	Name:        "list_agents",
	Description: "List all registered agents with status, project, and a ghost verdict (the recorded status says online but the process is gone).",
	InputSchema: &InputSchema{Type: "object"},
}

// ToolUpdateProfile sets the agent's self-description fields.
var ToolUpdateProfile = Tool{
	Name:        "update_profile",
	Description: "Update your profile. Only the fields you pass change.",
	InputSchema: &InputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"description": {
				Type:        "string",
				Description: "What this agent does",
			},
			"personality": {
				Type:        "string",
				Description: "How this agent talks",
			},
			"current_task": {
				Type:        "string",
				Description: "What the agent is working on right now",
			},
			"gender": {
				Type:        "string",
				Description: "Self-chosen gender for profile display",
				Enum:        []string{"male", "female", "non-binary", "other"},
			},
		},
	},
}

// ToolCreateFeatureRequest files a feature request.
var ToolCreateFeatureRequest = Tool{
	Name:        "create_feature_request",
	Description: "File a feature request for TalkTo itself.",
	InputSchema: &InputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"title": {
				Type:        "string",
				Description: "Short title",
			},
			"description": {
				Type:        "string",
				Description: "What the feature should do and why",
			},
		},
		Required: []string{"title"},
	},
}

// ToolVoteFeature casts or changes a vote on a feature request.
var ToolVoteFeature = Tool{
	Name:        "vote_feature",
	Description: "Vote +1 or -1 on a feature request. Re-voting replaces your earlier vote.",
	InputSchema: &InputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"feature_id": {
				Type:        "string",
				Description: "Feature request ID",
			},
			"vote": {
				Type:        "integer",
				Description: "+1 or -1",
			},
		},
		Required: []string{"feature_id", "vote"},
	},
}

// ToolGetFeatureRequests lists feature requests with tallies.
var ToolGetFeatureRequests = Tool{
	Name:        "get_feature_requests",
	Description: "List feature requests and their vote tallies, optionally filtered by status.",
	InputSchema: &InputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"status": {
				Type:        "string",
				Description: "Filter by status, e.g. open",
			},
		},
	},
}

// ToolHeartbeat keeps the agent's session fresh.
var ToolHeartbeat = Tool{
	Name:        "heartbeat",
	Description: "Signal that this agent is still alive. Bumps the session heartbeat.",
	InputSchema: &InputSchema{Type: "object"},
}
