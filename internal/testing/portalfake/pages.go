// internal/testing/portalfake/pages.go
package portalfake

import "fmt"

// Sentinel is the "none of the above" checkbox value.
const Sentinel = "K_以上均无"

// QuestionnairePage renders an evaluation page shaped like the portal's:
// hidden identifiers, a question table with two radio groups, a checkbox
// group carrying the sentinel, a score input and a free-text comment.
func QuestionnairePage(wjbm, ktid, token string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>课堂教学评价</title></head>
<body>
<div class="page-content">
<form id="saveEvaluation" name="saveEvaluation" method="post">
<input type="hidden" name="wjbm" value="%s">
<input type="hidden" name="ktid" value="%s">
<input type="hidden" name="tokenValue" value="%s">
<table class="table table-bordered">
<tr><td>1. 教师备课充分，讲解清晰</td><td>
<label><input type="radio" name="0000000401" value="10_1">非常满意</label>
<label><input type="radio" name="0000000401" value="10_0.8">满意</label>
<label><input type="radio" name="0000000401" value="10_0.6">一般</label>
</td></tr>
<tr><td>2. 课堂互动良好</td><td>
<label><input type="radio" name="0000000402" value="20_1">非常满意</label>
<label><input type="radio" name="0000000402" value="20_0.5">不满意</label>
</td></tr>
<tr><td>3. 本课程对你的帮助</td><td>
<label><input type="checkbox" name="0000000403" value="K_专业知识">专业知识</label>
<label><input type="checkbox" name="0000000403" value="K_研究方法">研究方法</label>
<label><input type="checkbox" name="0000000403" value="%s">以上均无</label>
</td></tr>
<tr><td>4. 总体评分</td><td>
<input type="text" name="0000000404" class="form-control" placeholder="请输入1-100的整数">
</td></tr>
<tr><td>5. 意见与建议</td><td>
<textarea name="zgpj" class="form-control value_element" rows="4"></textarea>
</td></tr>
</table>
<button type="button" id="buttonSubmit">提交</button>
</form>
</div>
</body></html>`, wjbm, ktid, token, Sentinel)
}
