package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/GrokExporter/internal/models"
	"github.com/RecoveryAshes/GrokExporter/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
)

// StaticLinkCollector 静态链接采集器(使用Colly)
// 处理不需要浏览器的来源: 保存到本地后自托管的历史页面快照,
// 或可直接访问的镜像页面, 从HTML中提取会话链接
type StaticLinkCollector struct {
	collector *colly.Collector
	timeout   time.Duration

	links []models.ConversationLink
	seen  map[string]struct{}
}

// NewStaticLinkCollector 创建静态链接采集器
func NewStaticLinkCollector(timeout time.Duration) *StaticLinkCollector {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, // 允许自托管快照使用自签名证书
			},
		},
	}

	c := colly.NewCollector()
	c.SetClient(httpClient)
	c.SetRequestTimeout(timeout)

	sc := &StaticLinkCollector{
		collector: c,
		timeout:   timeout,
		seen:      make(map[string]struct{}),
	}
	sc.setupCallbacks()
	return sc
}

// setupCallbacks 设置Colly回调
func (sc *StaticLinkCollector) setupCallbacks() {
	// 在OnResponse中自行解压并用goquery解析
	// 原因: 部分镜像返回br编码, Colly不自动处理Brotli
	sc.collector.OnResponse(func(r *colly.Response) {
		body := r.Body
		if encoding := r.Headers.Get("Content-Encoding"); encoding != "" {
			decompressed, err := decompressResponse(encoding, r.Body)
			if err != nil {
				utils.Warnf("解压响应失败 [%s] (编码=%s): %v", r.Request.URL, encoding, err)
			} else {
				body = decompressed
			}
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			utils.Errorf("解析HTML失败 [%s]: %v", r.Request.URL, err)
			return
		}

		doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			href, ok := sel.Attr("href")
			if !ok {
				return
			}
			link, err := models.ParseConversationLink(href)
			if err != nil {
				return
			}
			if _, dup := sc.seen[link.ConversationID]; dup {
				return
			}
			sc.seen[link.ConversationID] = struct{}{}
			sc.links = append(sc.links, link)
		})
	})

	sc.collector.OnError(func(r *colly.Response, err error) {
		utils.Errorf("抓取失败 [%s]: %v", r.Request.URL, err)
	})

	sc.collector.OnRequest(func(r *colly.Request) {
		utils.Debugf("访问: %s", r.URL.String())
	})
}

// Collect 抓取指定页面并返回其中的会话链接
func (sc *StaticLinkCollector) Collect(pageURL string) ([]models.ConversationLink, error) {
	sc.links = nil
	sc.seen = make(map[string]struct{})

	if err := sc.collector.Visit(pageURL); err != nil {
		return nil, fmt.Errorf("访问页面失败 [%s]: %w", pageURL, err)
	}
	sc.collector.Wait()

	utils.Infof("🔍 从 %s 采集到 %d 个会话链接", pageURL, len(sc.links))
	return sc.links, nil
}

// decompressResponse 根据Content-Encoding解压响应体
// 支持 gzip, deflate, br (Brotli) 三种压缩格式
func decompressResponse(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "gzip":
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("gzip读取失败: %w", err)
		}
		return decompressed, nil

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("deflate读取失败: %w", err)
		}
		return decompressed, nil

	case "br":
		reader := brotli.NewReader(bytes.NewReader(body))
		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("brotli读取失败: %w", err)
		}
		return decompressed, nil

	case "":
		return body, nil

	default:
		utils.Warnf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}
}
