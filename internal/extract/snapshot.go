// Package extract 实现从页面快照恢复会话消息的启发式解析
// 解析逻辑是纯函数 (DocumentSnapshot) -> []Message, 与浏览器环境解耦,
// 可以直接用保存的HTML固件离线测试
package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"golang.org/x/net/html"
)

// Rect 元素在视口中的包围盒
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Node 快照中的一个元素节点
// 只保留解析需要的信息: 标签名、白名单属性、可见文本、包围盒、子节点
type Node struct {
	Tag      string            `json:"tag"`
	Attrs    map[string]string `json:"attrs"`
	Text     string            `json:"text"`
	Rect     Rect              `json:"rect"`
	Children []*Node           `json:"children"`

	parent *Node
}

// Attr 返回属性值, 不存在时返回空串
func (n *Node) Attr(name string) string {
	if n.Attrs == nil {
		return ""
	}
	return n.Attrs[name]
}

// AttrContains 检查属性值是否包含子串
func (n *Node) AttrContains(name, substr string) bool {
	v := n.Attr(name)
	return v != "" && strings.Contains(v, substr)
}

// Parent 返回父节点(根节点为nil)
func (n *Node) Parent() *Node {
	return n.parent
}

// Walk 先序遍历子树(含自身), fn返回false时跳过该节点的子树
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Find 返回子树中所有满足条件的节点(含自身)
func (n *Node) Find(pred func(*Node) bool) []*Node {
	var out []*Node
	n.Walk(func(node *Node) bool {
		if pred(node) {
			out = append(out, node)
		}
		return true
	})
	return out
}

// FindFirst 返回子树中第一个满足条件的节点, 不存在时返回nil
func (n *Node) FindFirst(pred func(*Node) bool) *Node {
	var found *Node
	n.Walk(func(node *Node) bool {
		if found != nil {
			return false
		}
		if pred(node) {
			found = node
			return false
		}
		return true
	})
	return found
}

// DescendantCount 返回子树中元素节点数量(不含自身)
// 位置去重时用于判断"结构最具体"的节点: 数量最少即最内层
func (n *Node) DescendantCount() int {
	count := -1 // 抵消自身
	n.Walk(func(*Node) bool {
		count++
		return true
	})
	return count
}

// Snapshot 某一时刻页面的结构快照
type Snapshot struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Root  *Node  `json:"root"`
}

// link 重建父指针(反序列化后必须调用)
func (s *Snapshot) link() {
	var walk func(n *Node, parent *Node)
	walk = func(n *Node, parent *Node) {
		if n == nil {
			return
		}
		n.parent = parent
		for _, c := range n.Children {
			walk(c, n)
		}
	}
	walk(s.Root, nil)
}

// FromJSON 从快照JSON重建Snapshot
func FromJSON(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("解析快照JSON失败: %w", err)
	}
	snap.link()
	return &snap, nil
}

// captureJS 在页面内序列化DOM为快照JSON
// 只采集白名单属性; innerText只对带dir属性的节点和主容器采集, 控制载荷大小
const captureJS = `() => {
	var keep = ['data-testid', 'dir', 'aria-label', 'href', 'datetime', 'lang', 'role', 'data-href', 'data-url'];
	var walk = function(el, depth) {
		if (!el || depth > 60) return null;
		var attrs = {};
		for (var i = 0; i < keep.length; i++) {
			var v = el.getAttribute ? el.getAttribute(keep[i]) : null;
			if (v !== null && v !== '') attrs[keep[i]] = v;
		}
		var rect = el.getBoundingClientRect ? el.getBoundingClientRect() : { top: 0, left: 0, width: 0, height: 0 };
		var wantText = attrs['dir'] || attrs['data-testid'] === 'primaryColumn';
		var node = {
			tag: el.tagName ? el.tagName.toLowerCase() : '',
			attrs: attrs,
			text: (wantText && el.innerText) ? el.innerText.substring(0, 20000) : '',
			rect: { top: rect.top, left: rect.left, width: rect.width, height: rect.height },
			children: []
		};
		for (var j = 0; j < el.children.length; j++) {
			var c = walk(el.children[j], depth + 1);
			if (c) node.children.push(c);
		}
		return node;
	};
	return JSON.stringify({
		url: window.location.href,
		title: document.title,
		root: walk(document.body, 0)
	});
}`

// CaptureFromPage 从浏览器页面采集当前文档快照
func CaptureFromPage(page *rod.Page) (*Snapshot, error) {
	result, err := page.Evaluate(&rod.EvalOptions{JS: captureJS})
	if err != nil {
		return nil, fmt.Errorf("执行快照采集脚本失败: %w", err)
	}
	raw := result.Value.Str()
	if raw == "" {
		return nil, fmt.Errorf("快照采集脚本返回空结果")
	}
	return FromJSON([]byte(raw))
}

// FromHTML 从保存的HTML构建快照(离线导出与测试固件)
// 静态HTML没有布局信息, 按文档顺序为每个节点合成纵坐标:
// 节点的top取其子树内第一个文本片段的顺序号, 保证排序与去重仍按文档顺序工作
func FromHTML(htmlContent string) (*Snapshot, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败: %w", err)
	}

	const rowHeight = 24.0
	var title string
	textOrder := 0

	var build func(n *html.Node) *Node
	build = func(n *html.Node) *Node {
		if n.Type != html.ElementNode {
			return nil
		}
		if n.Data == "script" || n.Data == "style" {
			return nil
		}
		node := &Node{Tag: n.Data, Attrs: map[string]string{}}
		for _, attr := range n.Attr {
			node.Attrs[attr.Key] = attr.Val
		}

		firstText := -1
		var parts []string
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				t := strings.TrimSpace(c.Data)
				if t != "" {
					if firstText == -1 {
						firstText = textOrder
					}
					textOrder++
					parts = append(parts, t)
				}
			case html.ElementNode:
				child := build(c)
				if child == nil {
					continue
				}
				node.Children = append(node.Children, child)
				if child.Text != "" {
					if firstText == -1 {
						firstText = int(child.Rect.Top / rowHeight)
					}
					parts = append(parts, child.Text)
				}
			}
		}

		if firstText == -1 {
			firstText = textOrder
		}
		node.Text = strings.TrimSpace(strings.Join(parts, "\n"))
		node.Rect = Rect{Top: float64(firstText) * rowHeight}
		return node
	}

	var findElem func(n *html.Node, tag string) *html.Node
	findElem = func(n *html.Node, tag string) *html.Node {
		if n.Type == html.ElementNode && n.Data == tag {
			return n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if found := findElem(c, tag); found != nil {
				return found
			}
		}
		return nil
	}
	if t := findElem(doc, "title"); t != nil && t.FirstChild != nil {
		title = strings.TrimSpace(t.FirstChild.Data)
	}

	var root *Node
	if body := findElem(doc, "body"); body != nil {
		root = build(body)
	}
	if root == nil {
		return nil, fmt.Errorf("HTML中没有可用的元素节点")
	}

	snap := &Snapshot{Title: title, Root: root}
	snap.link()
	return snap, nil
}
