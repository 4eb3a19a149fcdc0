// Package labels はラベル表とクラス名ファイルの読み込みを提供します。
package labels

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultTable は検出器の略称ラベルから大学の正式名称への組み込みの対応表です。
var defaultTable = map[string]string{
	"pku":    "北京大学",
	"thu":    "清华大学",
	"zju":    "浙江大学",
	"fdu":    "复旦大学",
	"sjtu":   "上海交通大学",
	"nju":    "南京大学",
	"ustc":   "中国科学技术大学",
	"hit":    "哈尔滨工业大学",
	"xjtu":   "西安交通大学",
	"whu":    "武汉大学",
	"hust":   "华中科技大学",
	"sysu":   "中山大学",
	"nku":    "南开大学",
	"tju":    "天津大学",
	"buaa":   "北京航空航天大学",
	"bit":    "北京理工大学",
	"bnu":    "北京师范大学",
	"ruc":    "中国人民大学",
	"tongji": "同济大学",
	"scu":    "四川大学",
	"sdu":    "山东大学",
	"xmu":    "厦门大学",
	"csu":    "中南大学",
	"seu":    "东南大学",
	"ecnu":   "华东师范大学",
	"jlu":    "吉林大学",
	"dlut":   "大连理工大学",
	"uestc":  "电子科技大学",
	"nwpu":   "西北工业大学",
	"scut":   "华南理工大学",
}

// DefaultTable は組み込みの対応表のコピーを返します。
func DefaultTable() map[string]string {
	out := make(map[string]string, len(defaultTable))
	for k, v := range defaultTable {
		out[k] = v
	}
	return out
}

// LoadTable はYAMLまたはJSONのラベル表を読み込み、組み込みの対応表に上書きして返します。
// path が空の場合は組み込みの対応表のみを返します。
func LoadTable(path string) (map[string]string, error) {
	table := DefaultTable()
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read label table %s: %w", path, err)
	}

	var loaded map[string]string
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse label table %s: %w", path, err)
	}
	for k, v := range loaded {
		table[strings.ToLower(k)] = v
	}
	return table, nil
}

// dataset はYOLOのデータセット定義（data.yaml）のうちクラス名だけを表します。
type dataset struct {
	Names yaml.Node `yaml:"names"`
}

// LoadClassNames はクラス番号順のラベル一覧を読み込みます。
// .yaml/.yml は data.yaml の names（リストまたは番号をキーとするマップ）、
// それ以外は1行1ラベルのテキストとして扱います。
func LoadClassNames(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read class names %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return parseDataset(data)
	default:
		return parseLines(data), nil
	}
}

func parseDataset(data []byte) ([]string, error) {
	var ds dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}

	switch ds.Names.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := ds.Names.Decode(&names); err != nil {
			return nil, fmt.Errorf("failed to decode names: %w", err)
		}
		return names, nil

	case yaml.MappingNode:
		var byID map[int]string
		if err := ds.Names.Decode(&byID); err != nil {
			return nil, fmt.Errorf("failed to decode names: %w", err)
		}
		ids := make([]int, 0, len(byID))
		for id := range byID {
			if id < 0 {
				return nil, fmt.Errorf("negative class id %d", id)
			}
			ids = append(ids, id)
		}
		sort.Ints(ids)
		if len(ids) == 0 {
			return nil, nil
		}
		names := make([]string, ids[len(ids)-1]+1)
		for _, id := range ids {
			names[id] = byID[id]
		}
		return names, nil

	default:
		return nil, fmt.Errorf("dataset has no names")
	}
}

func parseLines(data []byte) []string {
	var names []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	return names
}
