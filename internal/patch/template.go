package patch

import (
	"fmt"
	"strings"
)

// StateHook 为框架 state hook 标识，同时用作幂等守卫的判定子串。
const StateHook = "useState"

// PlaceholderCall 为状态片段中的服务调用占位（默认不替换）。
const PlaceholderCall = "SERVICE_NAME.getMethod()"

// 工具组件导入（固定）。
const (
	toastImport   = "import { useToast } from '../components/Toast';"
	loadingImport = "import Loading from '../components/Loading';"
	errorImport   = "import ErrorMessage from '../components/ErrorMessage';"
	hookImport    = "import { useState, useEffect } from 'react';"
)

// ImportLines 返回按固定顺序排列的五条新导入行；第二行为服务导入。
func ImportLines(serviceIdentifier, serviceImportPath string) []string {
	return []string{
		hookImport,
		fmt.Sprintf("import { %s } from '%s';", serviceIdentifier, serviceImportPath),
		toastImport,
		loadingImport,
		errorImport,
	}
}

// stateTemplate 插入在组件函数体起始处；末尾保留空行与原函数体分隔。
const stateTemplate = `  const toast = useToast();
  const [data, setData] = useState(null);
  const [loading, setLoading] = useState(true);
  const [error, setError] = useState(null);

  useEffect(() => {
    loadData();
  }, []);

  const loadData = async () => {
    try {
      setLoading(true);
      setError(null);
      const result = await ` + PlaceholderCall + `;
      setData(result);
    } catch (err) {
      console.error('Error:', err);
      setError(err);
    } finally {
      setLoading(false);
    }
  };

  if (loading) return <Loading fullScreen message="Loading..." />;
  if (error) return <ErrorMessage error={error} onRetry={loadData} fullScreen />;

`

// StateBlock 返回待插入的状态片段。call 为空时保留占位调用。
func StateBlock(call string) string {
	if call == "" {
		return stateTemplate
	}
	return strings.Replace(stateTemplate, PlaceholderCall, call, 1)
}
