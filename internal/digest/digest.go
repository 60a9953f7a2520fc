package digest

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// MaxLineSize は1行として扱う最大バイト数
const MaxLineSize = 1 << 20

// Sum は line のSHA-1を16進文字列で返す
func Sum(line string) string {
	sum := sha1.Sum([]byte(line))
	return hex.EncodeToString(sum[:])
}

// Record は line の出力レコードを返す
func Record(line string) string {
	var b strings.Builder
	b.Grow(sha1.Size*2 + len(line) + 2)
	b.WriteString(Sum(line))
	b.WriteByte(',')
	b.WriteString(line)
	b.WriteByte('\n')
	return b.String()
}

// ReadLines は r を1行ずつ読み、fn を呼び出す
// 行末の \r は取り除く。fn がエラーを返した時点で中断する
// 読み込んだ行数を返す
func ReadLines(ctx context.Context, r io.Reader, fn func(line string) error) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)

	n := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if err := fn(line); err != nil {
			return n, err
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("failed to read line %d: %w", n+1, err)
	}
	return n, nil
}

// CollectLines は r の全行をスライスとして返す
func CollectLines(ctx context.Context, r io.Reader) ([]string, error) {
	var lines []string
	_, err := ReadLines(ctx, r, func(line string) error {
		lines = append(lines, line)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}
