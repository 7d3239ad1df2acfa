package config

import "pagepatch/pkg/contract"

// StudentPages 为学生门户的默认任务表（页面 → 服务/方法）。
// Feedback 页沿用 getProfile。
var StudentPages = []contract.PageTask{
	{Document: "Profile.jsx", ServiceIdentifier: "studentService", MethodName: "getProfile"},
	{Document: "Results.jsx", ServiceIdentifier: "studentService", MethodName: "getResults"},
	{Document: "Timetable.jsx", ServiceIdentifier: "studentService", MethodName: "getTimetable"},
	{Document: "AcademicCalendar.jsx", ServiceIdentifier: "studentService", MethodName: "getAcademicCalendar"},
	{Document: "Events.jsx", ServiceIdentifier: "studentService", MethodName: "getEvents"},
	{Document: "Canteen.jsx", ServiceIdentifier: "studentService", MethodName: "getCanteenStalls"},
	{Document: "CampusCoins.jsx", ServiceIdentifier: "studentService", MethodName: "getWallet"},
	{Document: "GatePass.jsx", ServiceIdentifier: "studentService", MethodName: "getGatePasses"},
	{Document: "Hostel.jsx", ServiceIdentifier: "studentService", MethodName: "getHostelInfo"},
	{Document: "Certificates.jsx", ServiceIdentifier: "studentService", MethodName: "getMyCertificates"},
	{Document: "Achievements.jsx", ServiceIdentifier: "studentService", MethodName: "getAchievements"},
	{Document: "FeeManagement.jsx", ServiceIdentifier: "studentService", MethodName: "getFees"},
	{Document: "Feedback.jsx", ServiceIdentifier: "studentService", MethodName: "getProfile"},
	{Document: "Notices.jsx", ServiceIdentifier: "studentService", MethodName: "getNotices"},
}

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
//   - 页面根目录为 student-portal/src/pages（相对当前目录）；
//   - 任务表为 StudentPages；默认 dry-run、不注入状态；
//   - writer 跟随 reader；options 留空，各组件的键不通用
//     （fs: max_bytes / atomic / backup_suffix / perm_*，afs: base_url / perm_file）。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := Config{
		BaseDir:           "student-portal/src/pages",
		Tasks:             cloneTasks(StudentPages),
		ServiceImportPath: d.ServiceImportPath,
		DryRun:            d.DryRun,
		InjectState:       d.InjectState,
		BindService:       d.BindService,
		Concurrency:       d.Concurrency,
		Logging:           d.Logging,
		Components:        d.Components,
	}
	return cfg
}
