package extract

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/RecoveryAshes/GrokExporter/internal/models"
)

// Options 消息解析参数
type Options struct {
	// FirstRole 没有头像证据时交替分配角色的起始方
	FirstRole models.Role
	// AvatarLevels 向上搜索用户头像的最大祖先层数
	AvatarLevels int
	// AvatarTolerance 头像与候选节点的垂直距离容差(像素)
	AvatarTolerance float64
	// RowTolerance 排序时视为同一行的纵坐标容差(像素)
	RowTolerance float64
}

// DefaultOptions 返回默认解析参数
func DefaultOptions() Options {
	return Options{
		FirstRole:       models.RoleUser,
		AvatarLevels:    8,
		AvatarTolerance: 150,
		RowTolerance:    10,
	}
}

var (
	// 引用来源小条: "2 web pages" / "3 sources" / "1 citation"
	citationPattern = regexp.MustCompile(`(?i)^\d+\s+(web\s+pages?|sources?|citations?)$`)
	// 纯数字行(点赞数、引用计数)
	integerPattern = regexp.MustCompile(`^\d+$`)
	// @用户名行
	mentionPattern = regexp.MustCompile(`^@\w+$`)
)

// 操作按钮文案, 整段匹配时视为噪声
var actionLabels = map[string]struct{}{
	"Copy":  {},
	"Retry": {},
	"Edit":  {},
	"Share": {},
	"Like":  {},
	"Reply": {},
}

// 界面装饰文案
var uiLabels = map[string]struct{}{
	"Auto":          {},
	"See new posts": {},
}

// isNoiseText 判断整段文本是否为界面噪声(候选节点级过滤)
func isNoiseText(text string) bool {
	if _, ok := uiLabels[text]; ok {
		return true
	}
	if _, ok := actionLabels[text]; ok {
		return true
	}
	return citationPattern.MatchString(text)
}

// isNoiseLine 判断单行是否为噪声(逐行清洗, 比节点级过滤更严格)
func isNoiseLine(line string) bool {
	if isNoiseText(line) {
		return true
	}
	return integerPattern.MatchString(line) || mentionPattern.MatchString(line)
}

// cleanupText 逐行清洗消息文本, 去掉空行和混入的界面文案
func cleanupText(raw string) string {
	lines := strings.Split(raw, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isNoiseLine(trimmed) {
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.Join(kept, "\n")
}

// candidate 候选消息节点及其位置信息
type candidate struct {
	node      *Node
	text      string
	posKey    string
	hasAvatar bool
}

// findContainer 定位会话主容器, 找不到时退回整棵树
func findContainer(snap *Snapshot) *Node {
	if snap == nil || snap.Root == nil {
		return nil
	}
	if c := snap.Root.FindFirst(func(n *Node) bool {
		return n.Attr("data-testid") == "primaryColumn"
	}); c != nil {
		return c
	}
	return snap.Root
}

// isCandidateNode 判断节点是否为潜在消息块
// 会话文本渲染在 div[dir=auto] / div[dir=ltr] / span[dir=auto] 中
func isCandidateNode(n *Node) bool {
	dir := n.Attr("dir")
	switch n.Tag {
	case "div":
		return dir == "auto" || dir == "ltr"
	case "span":
		return dir == "auto"
	}
	return false
}

// positionKey 由取整后的视口坐标生成位置指纹
// 同一视觉位置的嵌套节点共享指纹, 用于保留结构最内层的那一个
func positionKey(r Rect) string {
	return fmt.Sprintf("%d-%d", int(math.Round(r.Top)), int(math.Round(r.Left)))
}

// hasNearbyAvatar 检查候选节点附近是否有用户头像
// 从候选节点出发逐层向上, 在每层祖先的子树内找垂直距离足够近的头像节点;
// 祖先子树天然覆盖兄弟分支, 头像和消息文本通常挂在同一行容器的不同子树下
func hasNearbyAvatar(cand *Node, container *Node, levels int, tolerance float64) bool {
	cur := cand
	for i := 0; i < levels && cur != nil; i++ {
		found := cur.FindFirst(func(n *Node) bool {
			return n.AttrContains("data-testid", "UserAvatar") &&
				math.Abs(n.Rect.Top-cand.Rect.Top) <= tolerance
		})
		if found != nil {
			return true
		}
		if cur == container {
			break
		}
		cur = cur.parent
	}
	return false
}

// candidateTimestamp 尝试恢复消息的原始时间戳
// 优先找带头像的祖先块里的time[datetime], 其次在候选子树内找
func candidateTimestamp(cand *Node) string {
	isTime := func(n *Node) bool {
		return n.Tag == "time" && n.Attr("datetime") != ""
	}
	for cur := cand; cur != nil; cur = cur.parent {
		if cur.AttrContains("data-testid", "UserAvatar") {
			if t := cur.FindFirst(isTime); t != nil {
				return t.Attr("datetime")
			}
			break
		}
	}
	if t := cand.FindFirst(isTime); t != nil {
		return t.Attr("datetime")
	}
	return ""
}

// Extract 从页面快照解析会话消息
// 流程: 定位主容器 -> 收集文本候选 -> 噪声过滤 -> 位置去重(保留最内层)
// -> 按视口位置排序 -> 头像优先+交替兜底分配角色 -> 逐行清洗
func Extract(snap *Snapshot, opts Options) []models.Message {
	if opts.AvatarLevels <= 0 {
		opts.AvatarLevels = 8
	}
	if opts.AvatarTolerance <= 0 {
		opts.AvatarTolerance = 150
	}
	if opts.RowTolerance <= 0 {
		opts.RowTolerance = 10
	}
	if opts.FirstRole != models.RoleUser && opts.FirstRole != models.RoleAssistant {
		opts.FirstRole = models.RoleUser
	}

	container := findContainer(snap)
	if container == nil {
		return nil
	}

	// 位置去重: 同一视觉位置保留后代元素最少的节点
	best := make(map[string]*candidate)
	var order []string
	for _, node := range container.Find(isCandidateNode) {
		text := strings.TrimSpace(node.Text)
		if utf8.RuneCountInString(text) < 2 || isNoiseText(text) {
			continue
		}
		key := positionKey(node.Rect)
		cur, ok := best[key]
		if !ok {
			best[key] = &candidate{node: node, text: text, posKey: key}
			order = append(order, key)
			continue
		}
		if node.DescendantCount() < cur.node.DescendantCount() {
			cur.node = node
			cur.text = text
		}
	}

	candidates := make([]*candidate, 0, len(order))
	for _, key := range order {
		candidates = append(candidates, best[key])
	}

	// 按视口位置排列: 先上后下, 同一行内先左后右
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].node.Rect, candidates[j].node.Rect
		if math.Abs(a.Top-b.Top) <= opts.RowTolerance {
			return a.Left < b.Left
		}
		return a.Top < b.Top
	})

	for _, c := range candidates {
		c.hasAvatar = hasNearbyAvatar(c.node, container, opts.AvatarLevels, opts.AvatarTolerance)
	}

	messages := make([]models.Message, 0, len(candidates))
	for idx, c := range candidates {
		text := cleanupText(c.text)
		if utf8.RuneCountInString(strings.TrimSpace(text)) < 2 {
			continue
		}

		role := opts.FirstRole
		if idx%2 == 1 {
			role = opts.FirstRole.Other()
		}
		// 头像是强信号, 覆盖交替推断
		if c.hasAvatar {
			role = models.RoleUser
		}

		messages = append(messages, models.NewMessage(role, text, candidateTimestamp(c.node)))
	}
	return messages
}
