// Package broadcast defines the events pushed to connected UI clients
// and the WebSocket hub that fans them out.
package broadcast

// Event is one envelope on the wire: a type tag plus a typed payload.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Sink accepts events for fan-out. The hub implements it; tests swap in
// a recorder.
type Sink interface {
	Emit(event Event)
}

type MessageData struct {
	ID         string   `json:"id"`
	ChannelID  string   `json:"channel_id"`
	SenderID   string   `json:"sender_id"`
	SenderName string   `json:"sender_name"`
	Content    string   `json:"content"`
	Mentions   []string `json:"mentions"`
	ParentID   *string  `json:"parent_id"`
	CreatedAt  string   `json:"created_at"`
}

func NewMessageEvent(data MessageData) Event {
	if data.Mentions == nil {
		data.Mentions = []string{}
	}
	return Event{Type: "new_message", Data: data}
}

type AgentStatusData struct {
	AgentName   string `json:"agent_name"`
	Status      string `json:"status"`
	AgentType   string `json:"agent_type"`
	ProjectName string `json:"project_name"`
}

func AgentStatusEvent(agentName, status, agentType, projectName string) Event {
	return Event{Type: "agent_status", Data: AgentStatusData{
		AgentName:   agentName,
		Status:      status,
		AgentType:   agentType,
		ProjectName: projectName,
	}}
}

type AgentTypingData struct {
	AgentName string `json:"agent_name"`
	ChannelID string `json:"channel_id"`
	IsTyping  bool   `json:"is_typing"`
	Error     string `json:"error,omitempty"`
}

// AgentTypingEvent brackets an invocation attempt. errMsg is only set on
// the closing event when the invocation failed.
func AgentTypingEvent(agentName, channelID string, isTyping bool, errMsg string) Event {
	return Event{Type: "agent_typing", Data: AgentTypingData{
		AgentName: agentName,
		ChannelID: channelID,
		IsTyping:  isTyping,
		Error:     errMsg,
	}}
}

type ChannelCreatedData struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	ProjectPath string `json:"project_path,omitempty"`
}

func ChannelCreatedEvent(channelID, name, channelType, projectPath string) Event {
	return Event{Type: "channel_created", Data: ChannelCreatedData{
		ID:          channelID,
		Name:        name,
		Type:        channelType,
		ProjectPath: projectPath,
	}}
}

type FeatureUpdateData struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	VoteCount  int    `json:"vote_count"`
	UpdateType string `json:"update_type"`
}

func FeatureUpdateEvent(featureID, title, status string, voteCount int, updateType string) Event {
	return Event{Type: "feature_update", Data: FeatureUpdateData{
		ID:         featureID,
		Title:      title,
		Status:     status,
		VoteCount:  voteCount,
		UpdateType: updateType,
	}}
}
