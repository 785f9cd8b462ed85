// 包 rules 负责加载画廊页的选择器预设（rules.yaml），
// 以预设名（如 default/masonry）组织 CSS 选择器，未填写的字段回退到内置默认值。
package rules

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rules 表示全部规则集合：键为预设名，值为具体规则。
type Rules struct {
	Presets map[string]Preset `yaml:",inline"`
}

// Preset 为单个主题预设。
type Preset struct {
	Gallery *GalleryPage `yaml:"gallery_page"`
}

// GalleryPage 描述画廊灯箱容器内各元素的选择器：
// - item/title/description 相对文档与容器
// - image/date/resolution/colors/alt_image 相对 main 子容器
type GalleryPage struct {
	Item        string `yaml:"item"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Main        string `yaml:"main"`
	Image       string `yaml:"image"`
	Date        string `yaml:"date"`
	Resolution  string `yaml:"resolution"`
	Colors      string `yaml:"colors"`
	AltImage    string `yaml:"alt_image"`
}

// DefaultGallery 返回内置的默认选择器。
func DefaultGallery() GalleryPage {
	return GalleryPage{
		Item:        ".gallery-item-lightbox",
		Title:       ".gallery-item-title",
		Description: ".gallery-item-description",
		Main:        ".gallery-item-main",
		Image:       "img",
		Date:        "time",
		Resolution:  ".gallery-item-resolution",
		Colors:      ".gallery-item-colors",
		AltImage:    ".gallery-item-alt-images img",
	}
}

// WithDefaults 用默认值补齐空字段。
func (g GalleryPage) WithDefaults() GalleryPage {
	d := DefaultGallery()
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&g.Item, d.Item)
	fill(&g.Title, d.Title)
	fill(&g.Description, d.Description)
	fill(&g.Main, d.Main)
	fill(&g.Image, d.Image)
	fill(&g.Date, d.Date)
	fill(&g.Resolution, d.Resolution)
	fill(&g.Colors, d.Colors)
	fill(&g.AltImage, d.AltImage)
	return g
}

func Load(path string) (*Rules, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules %s: %w", path, err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	var r Rules
	if err := yaml.Unmarshal(b, &r.Presets); err != nil {
		return nil, fmt.Errorf("unmarshal rules %s: %w", path, err)
	}
	return &r, nil
}

// GetPreset 按名称获取预设（不区分大小写），若为空或不存在则回退到 "default"。
func (r *Rules) GetPreset(name string) (Preset, bool) {
	if r == nil || len(r.Presets) == 0 {
		return Preset{}, false
	}
	if name == "" {
		name = "default"
	}
	if p, ok := r.Presets[name]; ok {
		return p, true
	}
	lower := strings.ToLower(name)
	for k, v := range r.Presets {
		if strings.ToLower(k) == lower {
			return v, true
		}
	}
	if p, ok := r.Presets["default"]; ok {
		return p, true
	}
	return Preset{}, false
}

// Gallery 解析主题对应的画廊选择器；规则缺失时返回内置默认值。
func (r *Rules) Gallery(theme string) GalleryPage {
	if p, ok := r.GetPreset(theme); ok && p.Gallery != nil {
		return p.Gallery.WithDefaults()
	}
	return DefaultGallery()
}
