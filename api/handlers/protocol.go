package handlers

import (
	"bytes"
	"encoding/json"

	"github.com/BaSui01/companion/agent"
	"github.com/BaSui01/companion/config"
	"github.com/BaSui01/companion/history"
)

// 入站消息类型
const (
	MsgTextInput             = "text-input"
	MsgMicAudioData          = "mic-audio-data"
	MsgRawAudioData          = "raw-audio-data"
	MsgMicAudioEnd           = "mic-audio-end"
	MsgAISpeakSignal         = "ai-speak-signal"
	MsgInterruptSignal       = "interrupt-signal"
	MsgAddClientToGroup      = "add-client-to-group"
	MsgRemoveClientFromGroup = "remove-client-from-group"
	MsgRequestGroupInfo      = "request-group-info"
	MsgFetchHistoryList      = "fetch-history-list"
	MsgFetchAndSetHistory    = "fetch-and-set-history"
	MsgCreateNewHistory      = "create-new-history"
	MsgDeleteHistory         = "delete-history"
	MsgFetchConfigs          = "fetch-configs"
	MsgFetchBackgrounds      = "fetch-backgrounds"
	MsgHeartbeat             = "heartbeat"
	MsgPlaybackComplete      = "frontend-playback-complete"
	MsgAudioPlayStart        = "audio-play-start"
	MsgExpressionCommand     = "expression-command"
	MsgMotionCommand         = "motion-command"
)

// 出站消息类型（对话事件见 conversation 包）
const (
	MsgSetModelAndConf      = "set-model-and-conf"
	MsgGroupUpdate          = "group-update"
	MsgGroupOperationResult = "group-operation-result"
	MsgHistoryList          = "history-list"
	MsgHistoryData          = "history-data"
	MsgNewHistoryCreated    = "new-history-created"
	MsgHistoryDeleted       = "history-deleted"
	MsgConfigFiles          = "config-files"
	MsgBackgroundFiles      = "background-files"
	MsgHeartbeatAck         = "heartbeat-ack"
)

// inboundMessage 是客户端消息的并集，按 Type 读取对应字段
type inboundMessage struct {
	Type       string            `json:"type"`
	Text       string            `json:"text,omitempty"`
	Images     []agent.ImageData `json:"images,omitempty"`
	Audio      []float32         `json:"audio,omitempty"`
	InviteeUID string            `json:"invitee_uid,omitempty"`
	TargetUID  string            `json:"target_uid,omitempty"`
	HistoryUID string            `json:"history_uid,omitempty"`

	// expression-command / motion-command
	ExpressionID flexID `json:"expression_id,omitempty"`
	MotionGroup  string `json:"motion_group,omitempty"`
	MotionIndex  *int   `json:"motion_index,omitempty"`
	Duration     int    `json:"duration,omitempty"`
	Loop         bool   `json:"loop,omitempty"`
	Priority     int    `json:"priority,omitempty"`
}

// flexID 接受字符串或数字形式的表情 ID
type flexID string

// UnmarshalJSON implements json.Unmarshaler.
func (f *flexID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// exemptFromRateLimit 音频帧高频推送，打断信号必须总能送达
func exemptFromRateLimit(msgType string) bool {
	switch msgType {
	case MsgMicAudioData, MsgRawAudioData, MsgInterruptSignal:
		return true
	}
	return false
}

type typeOnly struct {
	Type string `json:"type"`
}

// SetModelAndConf 在连接建立时告知前端角色与连接 ID
type SetModelAndConf struct {
	Type      string `json:"type"`
	ModelName string `json:"model_name,omitempty"`
	ConfName  string `json:"conf_name"`
	ConfUID   string `json:"conf_uid"`
	ClientUID string `json:"client_uid"`
}

// GroupUpdate 推送当前群组成员
type GroupUpdate struct {
	Type    string   `json:"type"`
	Members []string `json:"members"`
	IsOwner bool     `json:"is_owner"`
}

// GroupOperationResult 是加人、踢人的结果
type GroupOperationResult struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HistoryList 历史列表
type HistoryList struct {
	Type      string         `json:"type"`
	Histories []history.Info `json:"histories"`
}

// HistoryData 一段历史的全部消息
type HistoryData struct {
	Type     string            `json:"type"`
	Messages []history.Message `json:"messages"`
}

// NewHistoryCreated 新建历史的 ID
type NewHistoryCreated struct {
	Type       string `json:"type"`
	HistoryUID string `json:"history_uid"`
}

// HistoryDeleted 删除历史的结果
type HistoryDeleted struct {
	Type       string `json:"type"`
	Success    bool   `json:"success"`
	HistoryUID string `json:"history_uid"`
}

// ConfigFiles 可切换的角色配置
type ConfigFiles struct {
	Type    string              `json:"type"`
	Configs []config.ConfigFile `json:"configs"`
}

// BackgroundFiles 背景图片
type BackgroundFiles struct {
	Type  string                  `json:"type"`
	Files []config.BackgroundFile `json:"files"`
}
