package timerange

import "regexp"

// 数据文件名约定：<prefix>_<YYYYMMDD>_to_<YYYYMMDD>.<ext>
var filenameRangeRe = regexp.MustCompile(`(\d{8})_to_(\d{8})`)

// FilenameRange 是从文件名里提取出来的覆盖区间；未匹配时两个字段为空。
type FilenameRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// ExtractRangeFromFilename 从文件名提取内嵌区间并转成 YYYY-MM-DD。
// 不匹配约定时返回零值，永不报错。
func ExtractRangeFromFilename(name string) FilenameRange {
	m := filenameRangeRe.FindStringSubmatch(name)
	if len(m) != 3 {
		return FilenameRange{}
	}
	return FilenameRange{
		Start: dashDate(m[1]),
		End:   dashDate(m[2]),
	}
}

func dashDate(compact string) string {
	return compact[:4] + "-" + compact[4:6] + "-" + compact[6:]
}
