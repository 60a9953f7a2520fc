// Package chaos はベンチマーク用のフォールト注入機能を提供する。
//
// Injector はワーカープールに投入するジョブをラップし、設定された割合で
// パニックや遅延を注入する。パニックしたジョブの結果は書き込まれないため、
// ワーカー単位のパニック封じ込めが機能しているかを出力件数で検証できる。
//
// # 障害タイプ
//
// - Panic: ジョブ本体を実行せずにパニックする
// - Delay: 指定時間待ってからジョブ本体を実行する
//
// # 使用例
//
//	inj := chaos.New(chaos.Config{PanicRate: 0.01, Seed: 1})
//	pool.Execute(inj.Wrap(job))
//
//	stats := inj.Stats()
//	fmt.Println(stats.Panics)
package chaos
