// Package crawlers 封装浏览器驱动与链接采集
package crawlers

import (
	"errors"
	"fmt"

	"github.com/RecoveryAshes/GrokExporter/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// 错误类型定义
var (
	ErrBrowserCrashed = errors.New("浏览器崩溃")
	ErrPageNotReady   = errors.New("页面内容未就绪")
)

// Browser 浏览器会话封装(使用Rod)
type Browser struct {
	browser *rod.Browser
	page    *rod.Page
	config  BrowserConfig
}

// BrowserConfig 浏览器启动配置
type BrowserConfig struct {
	Headless bool
	// UserDataDir 浏览器用户数据目录, 保留登录态
	UserDataDir string
}

// NewBrowser 创建浏览器封装(未启动)
func NewBrowser(config BrowserConfig) *Browser {
	return &Browser{config: config}
}

// Launch 启动并连接浏览器
func (b *Browser) Launch() error {
	l := launcher.New().Headless(b.config.Headless)
	if b.config.UserDataDir != "" {
		l = l.UserDataDir(b.config.UserDataDir)
	}
	l = l.Set("ignore-certificate-errors")

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("启动浏览器失败: %w", err)
	}

	b.browser = rod.New().ControlURL(controlURL)
	if err := b.browser.Connect(); err != nil {
		return fmt.Errorf("连接浏览器失败: %w", err)
	}

	utils.Debugf("浏览器已启动: %s", controlURL)
	return nil
}

// Page 返回当前标签页, 首次调用时创建
func (b *Browser) Page() (*rod.Page, error) {
	if b.browser == nil {
		return nil, fmt.Errorf("浏览器未启动")
	}
	if b.page == nil {
		page, err := b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
		if err != nil {
			return nil, fmt.Errorf("创建标签页失败: %w", err)
		}
		b.page = page
	}
	return b.page, nil
}

// Navigate 导航到目标URL并等待加载完成
func (b *Browser) Navigate(targetURL string) error {
	page, err := b.Page()
	if err != nil {
		return err
	}
	if err := page.Navigate(targetURL); err != nil {
		return fmt.Errorf("导航失败 [%s]: %w", targetURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("等待页面加载失败 [%s]: %w", targetURL, err)
	}
	utils.Debugf("页面加载完成: %s", targetURL)
	return nil
}

// Reload 重新加载当前页面
func (b *Browser) Reload() error {
	page, err := b.Page()
	if err != nil {
		return err
	}
	if err := page.Reload(); err != nil {
		return fmt.Errorf("重新加载页面失败: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("等待页面加载失败: %w", err)
	}
	return nil
}

// Close 关闭浏览器
func (b *Browser) Close() {
	if b.browser != nil {
		b.browser.MustClose()
		b.browser = nil
		b.page = nil
		utils.Debugf("浏览器已关闭")
	}
}
