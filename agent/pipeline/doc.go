// Copyright 2026 Companion Authors. All rights reserved.

/*
Package pipeline 将 LLM 的 token 流转换为结构化句子单元。

四个阶段按顺序串联，每个阶段都是 func(ctx, <-chan In) <-chan Out：

  - SentenceDivider  按句切分，可选首句逗号快速输出
  - ActionExtractor  提取 [keyword] 表情标签
  - DisplayProcessor 去除 <think> 段与标签，附加说话人
  - TTSFilter        生成送入语音合成的文本

任一阶段在 ctx 取消后停止，不会阻塞上游。
*/
package pipeline
