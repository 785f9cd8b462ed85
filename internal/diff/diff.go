// 包 diff 负责获取版本库 diff 文本，并从新增行中提取画廊条目链接。
package diff

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

var ErrEmptyCommand = errors.New("diff command is empty")

// linePattern 构造新增行匹配：+ 开头、可选空白、带标记 class 与 href 的 <a> 标签。
func linePattern(markerClass string) *regexp.Regexp {
	return regexp.MustCompile(`^\+\s*<a\s+class="` + regexp.QuoteMeta(markerClass) + `"\s+href="([^"]+)"[^>]*>`)
}

// ExtractLinks 按文档顺序返回新增行中的链接；删除行、上下文行与文件头均忽略。
func ExtractLinks(text, markerClass string) []string {
	re := linePattern(markerClass)
	var out []string
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.HasPrefix(line, "+++") {
			continue
		}
		if m := re.FindStringSubmatch(line); m != nil {
			out = append(out, m[1])
		}
	}
	return out
}

// Command 执行外部 diff 命令（默认 git diff）并返回标准输出。
// 命令失败视为致命错误，由调用方终止运行。
func Command(ctx context.Context, argv []string) (string, error) {
	if len(argv) == 0 || argv[0] == "" {
		return "", ErrEmptyCommand
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("run %s: %w: %s", strings.Join(argv, " "), err, msg)
		}
		return "", fmt.Errorf("run %s: %w", strings.Join(argv, " "), err)
	}
	return stdout.String(), nil
}

// ReadFile 读取已保存的 diff；"-" 表示标准输入。
func ReadFile(path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read diff from stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read diff %s: %w", path, err)
	}
	return string(b), nil
}
